package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mr1hm/go-guardian/internal/config"
	"github.com/mr1hm/go-guardian/internal/geo"
)

// MQTTSource caches the latest fix published on the position topic and
// forwards text published on the reply topic to onReply.
type MQTTSource struct {
	client     mqtt.Client
	topic      string
	replyTopic string
	onReply    func(string)

	mu     sync.Mutex
	latest geo.Point
	fresh  bool
}

func NewMQTTSource(cfg config.SourcesConfig, onReply func(string)) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	s := &MQTTSource{
		topic:      cfg.MQTTTopic,
		replyTopic: cfg.MQTTReplyTopic,
		onReply:    onReply,
	}
	// resubscribe after every reconnect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if err := s.subscribe(c); err != nil {
			slog.Error("mqtt subscribe failed", "error", err)
		}
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return s, nil
}

func (s *MQTTSource) subscribe(c mqtt.Client) error {
	if token := c.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		if err := s.handlePosition(msg.Payload()); err != nil {
			slog.Warn("error handling mqtt position", "topic", msg.Topic(), "error", err)
		}
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", s.topic, token.Error())
	}

	if s.replyTopic == "" || s.onReply == nil {
		return nil
	}
	if token := c.Subscribe(s.replyTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleReply(msg.Payload())
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", s.replyTopic, token.Error())
	}
	return nil
}

func (s *MQTTSource) handlePosition(payload []byte) error {
	p, ok, err := decodeFix(payload)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.latest = p
	s.fresh = true
	s.mu.Unlock()
	return nil
}

// handleReply accepts plain text or {"text": "..."}.
func (s *MQTTSource) handleReply(payload []byte) {
	text := strings.TrimSpace(string(payload))
	var wrapped struct {
		Text string `json:"text"`
	}
	if strings.HasPrefix(text, "{") && json.Unmarshal(payload, &wrapped) == nil {
		text = wrapped.Text
	}
	if text != "" {
		s.onReply(text)
	}
}

func (s *MQTTSource) Name() string { return "mqtt" }

// Current hands out each received fix once.
func (s *MQTTSource) Current(_ context.Context) (geo.Point, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return geo.Point{}, false, nil
	}
	s.fresh = false
	return s.latest, true, nil
}

func (s *MQTTSource) Close() {
	if s.client == nil {
		return
	}
	topics := []string{s.topic}
	if s.replyTopic != "" {
		topics = append(topics, s.replyTopic)
	}
	s.client.Unsubscribe(topics...).Wait()
	s.client.Disconnect(250)
}
