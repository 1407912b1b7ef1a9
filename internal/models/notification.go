package models

import (
	"time"

	"github.com/mr1hm/go-guardian/internal/geo"
)

type NotificationKind string

const (
	NotificationAlert    NotificationKind = "alert"
	NotificationResolved NotificationKind = "resolved"
	NotificationFollowUp NotificationKind = "follow_up"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is what the escalation path hands to the delivery sinks
// (SMS, email, push).
type Notification struct {
	Kind        NotificationKind
	Priority    Priority
	IncidentID  string
	Trigger     IncidentKind
	Outcome     string
	Position    geo.Point
	Description string
	Actions     []string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// AnalysisRequest is the context sent to the urgency analyzer.
type AnalysisRequest struct {
	Description string
	Position    *geo.Point
	At          time.Time
	Trigger     IncidentKind
}

type Analysis struct {
	UrgencyLevel       int      `json:"urgency_level"`
	RecommendedActions []string `json:"recommended_actions"`
	Summary            string   `json:"summary"`
}
