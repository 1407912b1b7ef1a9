package monitor

import (
	"context"

	"github.com/mr1hm/go-guardian/internal/broadcast"
	"github.com/mr1hm/go-guardian/internal/models"
	"github.com/mr1hm/go-guardian/internal/sequencer"
)

// BroadcastPrompter delivers confirmation questions to the wearer's device
// over the live event stream.
type BroadcastPrompter struct {
	b *broadcast.Broadcaster
}

func NewBroadcastPrompter(b *broadcast.Broadcaster) *BroadcastPrompter {
	return &BroadcastPrompter{b: b}
}

func (p *BroadcastPrompter) Prompt(_ context.Context, pr sequencer.Prompt) error {
	p.b.Broadcast(broadcast.Event{
		Type: broadcast.EventPrompt,
		Incident: &models.Incident{
			ID:   pr.Trigger.IncidentID,
			Kind: pr.Trigger.Kind,
		},
		Message: pr.Message,
	})
	return nil
}
