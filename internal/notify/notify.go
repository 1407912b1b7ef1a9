package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-guardian/internal/models"
)

// Sink delivers a formatted message over one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	IncidentID string
	Kind       models.NotificationKind
	Priority   models.Priority
	Subject    string
	Body       string
	Data       map[string]string
}

// Format renders a notification for human recipients. userName may be
// empty.
func Format(n models.Notification, userName string) Message {
	who := userName
	if who == "" {
		who = "The monitored person"
	}

	var subject string
	switch n.Kind {
	case models.NotificationResolved:
		subject = fmt.Sprintf("%s is OK", who)
	case models.NotificationFollowUp:
		subject = "Follow-up: " + headline(n.Trigger)
	default:
		subject = headline(n.Trigger)
	}

	var b strings.Builder
	switch n.Kind {
	case models.NotificationResolved:
		fmt.Fprintf(&b, "%s confirmed they are fine after a %s alert.\n", who, triggerName(n.Trigger))
	case models.NotificationFollowUp:
		fmt.Fprintf(&b, "Reminder: %s has not been confirmed safe since the alert below.\n", who)
	default:
		fmt.Fprintf(&b, "%s may need help.\n", who)
	}

	if n.Description != "" {
		fmt.Fprintf(&b, "Details: %s\n", n.Description)
	}
	if sev := n.Metadata["severity"]; sev != "" {
		fmt.Fprintf(&b, "Severity: %s\n", sev)
	}
	if u := n.Metadata["urgency"]; u != "" {
		fmt.Fprintf(&b, "Urgency: %s/10\n", u)
	}
	if s := n.Metadata["analysis_summary"]; s != "" {
		fmt.Fprintf(&b, "Assessment: %s\n", s)
	}
	for _, a := range n.Actions {
		fmt.Fprintf(&b, "- %s\n", a)
	}

	at := n.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	fmt.Fprintf(&b, "Time: %s\n", at.Format("2006-01-02 15:04:05 MST"))
	if !n.Position.IsZero() {
		fmt.Fprintf(&b, "Location: %s\n", n.Position.MapsURL())
	}

	data := map[string]string{
		"incident_id": n.IncidentID,
		"kind":        string(n.Kind),
		"trigger":     string(n.Trigger),
		"priority":    string(n.Priority),
	}
	if n.Outcome != "" {
		data["outcome"] = n.Outcome
	}
	for k, v := range n.Metadata {
		if _, taken := data[k]; !taken {
			data[k] = v
		}
	}

	return Message{
		IncidentID: n.IncidentID,
		Kind:       n.Kind,
		Priority:   n.Priority,
		Subject:    "[Guardian] " + subject,
		Body:       strings.TrimRight(b.String(), "\n"),
		Data:       data,
	}
}

func headline(kind models.IncidentKind) string {
	switch kind {
	case models.IncidentKindFall:
		return "FALL DETECTED"
	case models.IncidentKindPostFall:
		return "NO MOVEMENT AFTER FALL"
	case models.IncidentKindImmobility:
		return "PROLONGED IMMOBILITY"
	case models.IncidentKindKeyword:
		return "DISTRESS CALL"
	case models.IncidentKindTest:
		return "TEST ALERT"
	default:
		return "ALERT"
	}
}

func triggerName(kind models.IncidentKind) string {
	switch kind {
	case models.IncidentKindPostFall:
		return "post-fall"
	case "":
		return "safety"
	default:
		return strings.ReplaceAll(string(kind), "_", " ")
	}
}
