package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mr1hm/go-guardian/internal/models"
)

type rawSender func(ctx context.Context, raw string) error

type EmailSink struct {
	send rawSender
	from string
	to   []string
}

// NewEmailSink sends through the Gmail API as from, authenticated with a
// service account credentials file.
func NewEmailSink(ctx context.Context, credentialsFile, from string, to []string) (*EmailSink, error) {
	svc, err := gmail.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gmail client: %w", err)
	}

	send := func(ctx context.Context, raw string) error {
		_, err := svc.Users.Messages.Send(from, &gmail.Message{Raw: raw}).Context(ctx).Do()
		return err
	}
	return &EmailSink{send: send, from: from, to: to}, nil
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, to := range s.to {
		if err := s.send(ctx, encodeRFC822(s.from, to, msg)); err != nil {
			errs = append(errs, fmt.Errorf("email to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func encodeRFC822(from, to string, msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	if msg.Priority == models.PriorityHigh {
		b.WriteString("X-Priority: 1\r\n")
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
