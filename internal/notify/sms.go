package notify

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio rejects bodies longer than this many characters.
const maxSMSLength = 1600

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type SMSSink struct {
	api  messageCreator
	from string
	to   []string
}

func NewSMSSink(accountSID, authToken, from string, to []string) *SMSSink {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMSSink{api: client.Api, from: from, to: to}
}

func (s *SMSSink) Name() string { return "sms" }

func (s *SMSSink) Send(ctx context.Context, msg Message) error {
	body := truncateRunes(msg.Subject+"\n"+msg.Body, maxSMSLength)

	var errs []error
	for _, to := range s.to {
		if err := ctx.Err(); err != nil {
			return err
		}

		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(s.from)
		params.SetBody(body)

		if _, err := s.api.CreateMessage(params); err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
