package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/mr1hm/go-guardian/internal/models"
)

type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type PushSink struct {
	client fcmSender
	tokens []string
}

func NewPushSink(ctx context.Context, credentialsFile string, tokens []string) (*PushSink, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FCM client: %w", err)
	}
	return &PushSink{client: client, tokens: tokens}, nil
}

func (s *PushSink) Name() string { return "push" }

func (s *PushSink) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, token := range s.tokens {
		if _, err := s.client.Send(ctx, pushMessage(token, msg)); err != nil {
			errs = append(errs, fmt.Errorf("push to %s: %w", shortToken(token), err))
		}
	}
	return errors.Join(errs...)
}

func pushMessage(token string, msg Message) *messaging.Message {
	androidPriority := "normal"
	sound := ""
	if msg.Priority == models.PriorityHigh {
		androidPriority = "high"
		sound = "default"
	}

	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Subject,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
			Notification: &messaging.AndroidNotification{
				Sound: sound,
				Icon:  "ic_notification",
				Color: "#D32F2F",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Subject,
						Body:  msg.Body,
					},
					Sound: sound,
				},
			},
		},
	}
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
