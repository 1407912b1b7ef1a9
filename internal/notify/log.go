package notify

import (
	"context"
	"log/slog"

	"github.com/mr1hm/go-guardian/internal/models"
)

// LogSink writes every notification to the structured log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(_ context.Context, msg Message) error {
	level := slog.LevelInfo
	if msg.Priority == models.PriorityHigh {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "notification",
		"incident_id", msg.IncidentID,
		"kind", msg.Kind,
		"priority", msg.Priority,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
