package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-guardian/internal/detector"
	"github.com/mr1hm/go-guardian/internal/sequencer"
)

type Config struct {
	Server    ServerConfig
	User      UserConfig
	Detection DetectionConfig
	Sequencer SequencerConfig
	Worker    WorkerConfig
	Sources   SourcesConfig
	Notify    NotifyConfig
	Analysis  AnalysisConfig
	Redis     RedisConfig
	DB        DatabaseConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit float64 // requests per second, global
}

type UserConfig struct {
	ID               string
	Name             string
	ContactPhones    []string
	ContactEmails    []string
	ContactFCMTokens []string
}

type DetectionConfig struct {
	SamplingPeriod           time.Duration
	ImmobilityDistanceM      float64
	ImmobilityTime           time.Duration
	SpeedThresholdHighKmh    float64
	SpeedThresholdLowKmh     float64
	AccelerationThresholdMs2 float64
	StationaryTime           time.Duration
	HistoryCapacity          int
	PostFallMovementM        float64
	Keywords                 []string
}

type SequencerConfig struct {
	PrimaryTimeout   time.Duration
	FallTimeout      time.Duration
	DetailTimeout    time.Duration
	AnalysisTimeout  time.Duration
	NotifyOnResolved bool
	FollowUpCritical time.Duration
	FollowUpSevere   time.Duration
	FollowUpModerate time.Duration
	FollowUpLight    time.Duration
	InboxSize        int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SourcesConfig struct {
	HTTPEnabled    bool
	HTTPURL        string
	MQTTEnabled    bool
	MQTTBroker     string
	MQTTClientID   string
	MQTTUsername   string
	MQTTPassword   string
	MQTTTopic      string
	MQTTReplyTopic string
	ReplayEnabled  bool
	ReplayPath     string
}

type NotifyConfig struct {
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	GmailCredentials string // service account JSON file
	GmailSender      string
	FCMCredentials   string // service account JSON file
}

type AnalysisConfig struct {
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
}

type RedisConfig struct {
	Addr      string // empty disables the status cache
	Password  string
	DB        int
	StatusTTL time.Duration
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string // json or text
}

var defaultKeywords = []string{
	"help", "help me", "emergency", "sos", "call for help",
	"aide", "aidez-moi", "au secours", "à l'aide", "urgence",
}

func Load() (*Config, error) {
	fall := detector.DefaultFallConfig()
	imm := detector.DefaultImmobilityConfig()
	seq := sequencer.DefaultConfig()

	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 8080),
			RateLimit: getEnvFloat("SERVER_RATE_LIMIT", 5),
		},
		User: UserConfig{
			ID:               getEnv("USER_ID", "default"),
			Name:             getEnv("USER_NAME", ""),
			ContactPhones:    getEnvList("CONTACT_PHONES"),
			ContactEmails:    getEnvList("CONTACT_EMAILS"),
			ContactFCMTokens: getEnvList("CONTACT_FCM_TOKENS"),
		},
		Detection: DetectionConfig{
			SamplingPeriod:           getEnvDuration("GPS_SAMPLING_PERIOD", 5*time.Second),
			ImmobilityDistanceM:      getEnvFloat("IMMOBILITY_DISTANCE_M", imm.DistanceThresholdM),
			ImmobilityTime:           getEnvDuration("IMMOBILITY_TIME", imm.TimeThreshold),
			SpeedThresholdHighKmh:    getEnvFloat("FALL_SPEED_HIGH_KMH", fall.SpeedThresholdHighKmh),
			SpeedThresholdLowKmh:     getEnvFloat("FALL_SPEED_LOW_KMH", fall.SpeedThresholdLowKmh),
			AccelerationThresholdMs2: getEnvFloat("FALL_ACCELERATION_MS2", fall.AccelerationThresholdMs2),
			StationaryTime:           getEnvDuration("FALL_STATIONARY_TIME", fall.StationaryTime),
			HistoryCapacity:          getEnvInt("FALL_HISTORY_CAPACITY", fall.HistoryCapacity),
			PostFallMovementM:        getEnvFloat("FALL_POST_MOVEMENT_M", fall.PostFallMovementM),
			Keywords:                 getEnvListDefault("EMERGENCY_KEYWORDS", defaultKeywords),
		},
		Sequencer: SequencerConfig{
			PrimaryTimeout:   getEnvDuration("CONFIRM_TIMEOUT", seq.PrimaryTimeout),
			FallTimeout:      getEnvDuration("FALL_CONFIRM_TIMEOUT", seq.FallTimeout),
			DetailTimeout:    getEnvDuration("DETAIL_TIMEOUT", seq.DetailTimeout),
			AnalysisTimeout:  getEnvDuration("ANALYSIS_TIMEOUT", seq.AnalysisTimeout),
			NotifyOnResolved: getEnvBool("NOTIFY_ON_RESOLVED", seq.NotifyOnResolved),
			FollowUpCritical: getEnvDuration("FOLLOW_UP_CRITICAL", seq.FollowUp.Critical),
			FollowUpSevere:   getEnvDuration("FOLLOW_UP_SEVERE", seq.FollowUp.Severe),
			FollowUpModerate: getEnvDuration("FOLLOW_UP_MODERATE", seq.FollowUp.Moderate),
			FollowUpLight:    getEnvDuration("FOLLOW_UP_LIGHT", seq.FollowUp.Light),
			InboxSize:        getEnvInt("REPLY_INBOX_SIZE", 16),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Sources: SourcesConfig{
			HTTPEnabled:    getEnvBool("HTTP_SOURCE_ENABLED", false),
			HTTPURL:        getEnv("HTTP_SOURCE_URL", ""),
			MQTTEnabled:    getEnvBool("MQTT_ENABLED", false),
			MQTTBroker:     getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			MQTTClientID:   getEnv("MQTT_CLIENT_ID", "guardian"),
			MQTTUsername:   getEnv("MQTT_USERNAME", ""),
			MQTTPassword:   getEnv("MQTT_PASSWORD", ""),
			MQTTTopic:      getEnv("MQTT_POSITION_TOPIC", "guardian/position"),
			MQTTReplyTopic: getEnv("MQTT_REPLY_TOPIC", "guardian/reply"),
			ReplayEnabled:  getEnvBool("REPLAY_ENABLED", false),
			ReplayPath:     getEnv("REPLAY_PATH", ""),
		},
		Notify: NotifyConfig{
			TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
			GmailCredentials: getEnv("GMAIL_CREDENTIALS_FILE", ""),
			GmailSender:      getEnv("GMAIL_SENDER", ""),
			FCMCredentials:   getEnv("FCM_CREDENTIALS_FILE", ""),
		},
		Analysis: AnalysisConfig{
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			StatusTTL: getEnvDuration("REDIS_STATUS_TTL", 10*time.Minute),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/guardian.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	d := c.Detection
	if d.SamplingPeriod < 100*time.Millisecond {
		return fmt.Errorf("GPS sampling period must be at least 100ms")
	}
	if d.ImmobilityDistanceM <= 0 || d.ImmobilityTime <= 0 {
		return fmt.Errorf("immobility thresholds must be positive")
	}
	if d.SpeedThresholdLowKmh < 0 || d.SpeedThresholdHighKmh <= d.SpeedThresholdLowKmh {
		return fmt.Errorf("fall speed thresholds must satisfy 0 <= low < high")
	}
	if d.AccelerationThresholdMs2 >= 0 {
		return fmt.Errorf("fall acceleration threshold must be negative")
	}
	if d.HistoryCapacity < 2 {
		return fmt.Errorf("fall history capacity must be at least 2")
	}
	if d.StationaryTime <= 0 || d.PostFallMovementM <= 0 {
		return fmt.Errorf("post-fall thresholds must be positive")
	}

	s := c.Sequencer
	if s.PrimaryTimeout <= 0 || s.FallTimeout <= 0 || s.DetailTimeout <= 0 {
		return fmt.Errorf("confirmation timeouts must be positive")
	}
	if s.InboxSize < 1 {
		return fmt.Errorf("reply inbox size must be at least 1")
	}

	if c.Worker.Count < 1 || c.Worker.BufferSize < 1 {
		return fmt.Errorf("worker count and buffer size must be at least 1")
	}

	if c.Sources.HTTPEnabled && c.Sources.HTTPURL == "" {
		return fmt.Errorf("HTTP_SOURCE_URL is required when the HTTP source is enabled")
	}
	if c.Sources.ReplayEnabled && c.Sources.ReplayPath == "" {
		return fmt.Errorf("REPLAY_PATH is required when replay is enabled")
	}

	return nil
}

func (c *Config) ImmobilityConfig() detector.ImmobilityConfig {
	return detector.ImmobilityConfig{
		DistanceThresholdM: c.Detection.ImmobilityDistanceM,
		TimeThreshold:      c.Detection.ImmobilityTime,
	}
}

func (c *Config) FallConfig() detector.FallConfig {
	return detector.FallConfig{
		SpeedThresholdHighKmh:    c.Detection.SpeedThresholdHighKmh,
		SpeedThresholdLowKmh:     c.Detection.SpeedThresholdLowKmh,
		AccelerationThresholdMs2: c.Detection.AccelerationThresholdMs2,
		StationaryTime:           c.Detection.StationaryTime,
		HistoryCapacity:          c.Detection.HistoryCapacity,
		PostFallMovementM:        c.Detection.PostFallMovementM,
	}
}

func (c *Config) SequencerConfig() sequencer.Config {
	return sequencer.Config{
		PrimaryTimeout:   c.Sequencer.PrimaryTimeout,
		FallTimeout:      c.Sequencer.FallTimeout,
		DetailTimeout:    c.Sequencer.DetailTimeout,
		AnalysisTimeout:  c.Sequencer.AnalysisTimeout,
		NotifyOnResolved: c.Sequencer.NotifyOnResolved,
		FollowUp: sequencer.FollowUpDelays{
			Critical: c.Sequencer.FollowUpCritical,
			Severe:   c.Sequencer.FollowUpSevere,
			Moderate: c.Sequencer.FollowUpModerate,
			Light:    c.Sequencer.FollowUpLight,
		},
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvListDefault(key string, fallback []string) []string {
	if list := getEnvList(key); len(list) > 0 {
		return list
	}
	return fallback
}
