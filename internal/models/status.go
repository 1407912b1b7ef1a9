package models

import (
	"time"

	"github.com/mr1hm/go-guardian/internal/geo"
)

// Status is a point-in-time snapshot of the monitor.
type Status struct {
	UserID           string     `json:"user_id"`
	Position         *geo.Point `json:"position,omitempty"`
	LastFixAt        time.Time  `json:"last_fix_at,omitzero"`
	StaticSeconds    float64    `json:"static_seconds"`
	FallArmed        bool       `json:"fall_armed"`
	SequencerState   string     `json:"sequencer_state"`
	PendingFollowUps int        `json:"pending_follow_ups"`
	QueuedCycles     int        `json:"queued_cycles"`
	PendingReplies   int        `json:"pending_replies"`
	DroppedReplies   uint64     `json:"dropped_replies"`
	Positions        uint64     `json:"positions"`
	Incidents        uint64     `json:"incidents"`
	Suppressed       uint64     `json:"suppressed"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
