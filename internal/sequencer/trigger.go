package sequencer

import (
	"fmt"
	"time"

	"github.com/mr1hm/go-guardian/internal/detector"
	"github.com/mr1hm/go-guardian/internal/geo"
	"github.com/mr1hm/go-guardian/internal/models"
)

// Trigger is a detector signal handed to the sequencer.
type Trigger struct {
	IncidentID string
	Kind       models.IncidentKind
	Position   geo.Point
	// NoFix is set when no position was known; Position is then unset.
	NoFix      bool
	DetectedAt time.Time
	Fall       *detector.FallEvent
	PostFall   *detector.PostFallAlert
	// Detail carries the phrase that raised a keyword trigger.
	Detail string
}

// Severity grades the trigger for follow-up scheduling.
func (t Trigger) Severity() detector.Severity {
	switch t.Kind {
	case models.IncidentKindFall:
		if t.Fall != nil {
			return t.Fall.Severity
		}
		return detector.SeveritySevere
	case models.IncidentKindPostFall:
		return detector.SeverityCritical
	case models.IncidentKindKeyword:
		return detector.SeveritySevere
	default:
		return detector.SeverityModerate
	}
}

func (t Trigger) isFallRelated() bool {
	return t.Kind == models.IncidentKindFall || t.Kind == models.IncidentKindPostFall
}

// Summary is a one-line, human readable description of what was detected.
func (t Trigger) Summary() string {
	switch t.Kind {
	case models.IncidentKindFall:
		if t.Fall != nil {
			return fmt.Sprintf("%s fall (%s): %.1f km/h to %.1f km/h, %.1f m/s²",
				t.Fall.Severity, t.Fall.FallType, t.Fall.PreviousSpeedKmh, t.Fall.CurrentSpeedKmh, t.Fall.AccelerationMs2)
		}
		return "fall detected"
	case models.IncidentKindPostFall:
		if t.PostFall != nil {
			return fmt.Sprintf("no movement %.0f s after a fall (%.1f m moved)",
				t.PostFall.TimeSinceFallSeconds, t.PostFall.MovementSinceFallMeters)
		}
		return "no movement after a fall"
	case models.IncidentKindImmobility:
		return "prolonged immobility"
	case models.IncidentKindKeyword:
		return fmt.Sprintf("distress phrase heard: %q", t.Detail)
	default:
		return string(t.Kind)
	}
}

func (t Trigger) metadata() map[string]string {
	md := map[string]string{
		"trigger":     string(t.Kind),
		"severity":    string(t.Severity()),
		"detected_at": t.DetectedAt.Format(time.RFC3339),
	}
	if !t.NoFix {
		md["maps_url"] = t.Position.MapsURL()
	}
	if t.Fall != nil {
		md["fall_type"] = string(t.Fall.FallType)
		md["previous_speed_kmh"] = fmt.Sprintf("%.1f", t.Fall.PreviousSpeedKmh)
		md["current_speed_kmh"] = fmt.Sprintf("%.1f", t.Fall.CurrentSpeedKmh)
		md["acceleration_ms2"] = fmt.Sprintf("%.2f", t.Fall.AccelerationMs2)
	}
	if t.PostFall != nil {
		md["time_since_fall_s"] = fmt.Sprintf("%.0f", t.PostFall.TimeSinceFallSeconds)
		md["movement_since_fall_m"] = fmt.Sprintf("%.1f", t.PostFall.MovementSinceFallMeters)
	}
	return md
}
