package models

import (
	"time"

	"github.com/mr1hm/go-guardian/internal/geo"
)

type IncidentKind string

const (
	IncidentKindImmobility IncidentKind = "immobility"
	IncidentKindFall       IncidentKind = "fall"
	IncidentKindPostFall   IncidentKind = "post_fall"
	IncidentKindKeyword    IncidentKind = "keyword"
	IncidentKindTest       IncidentKind = "test"
)

func ParseIncidentKind(s string) (IncidentKind, bool) {
	switch k := IncidentKind(s); k {
	case IncidentKindImmobility, IncidentKindFall, IncidentKindPostFall, IncidentKindKeyword, IncidentKindTest:
		return k, true
	}
	return "", false
}

// Outcome values stored on an incident once its confirmation cycle ends.
const (
	OutcomePending          = "pending"
	OutcomeConfirmedOK      = "confirmed_ok"
	OutcomeConfirmedProblem = "confirmed_problem"
	OutcomeTimedOut         = "timed_out"
	OutcomeCancelled        = "cancelled"
	// OutcomeSuppressed marks a trigger raised while a cycle of the same
	// kind was still pending.
	OutcomeSuppressed = "suppressed"
)

type Incident struct {
	ID          string       `json:"id"`
	Kind        IncidentKind `json:"kind"`
	FallType    string       `json:"fall_type,omitempty"` // empty unless Kind is fall
	Severity    string       `json:"severity"`            // light, moderate, severe, critical
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	NoPosition  bool         `json:"no_position,omitempty"` // raised before any fix, coordinates are meaningless
	Description string       `json:"description"`           // user-provided detail or detector summary
	Outcome     string       `json:"outcome"`
	Urgency     int          `json:"urgency,omitempty"` // 1-10 from the analyzer, 0 when not analyzed
	DetectedAt  time.Time    `json:"detected_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (i *Incident) Position() geo.Point {
	return geo.Point{
		Lat: i.Latitude,
		Lon: i.Longitude,
	}
}
