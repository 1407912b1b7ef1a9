package monitor

import (
	"log/slog"
	"time"

	"github.com/mr1hm/go-guardian/internal/detector"
	"github.com/mr1hm/go-guardian/internal/geo"
	"github.com/mr1hm/go-guardian/internal/ingestion"
	"github.com/mr1hm/go-guardian/internal/models"
)

// ReplayEvent is a detector signal raised while replaying a recorded track.
type ReplayEvent struct {
	At       time.Time               `json:"at"`
	Kind     models.IncidentKind     `json:"kind"`
	Position geo.Point               `json:"position"`
	Fall     *detector.FallEvent     `json:"fall,omitempty"`
	PostFall *detector.PostFallAlert `json:"post_fall,omitempty"`
}

type ReplayResult struct {
	Events   []ReplayEvent `json:"events"`
	Samples  int           `json:"samples"`
	Rejected int           `json:"rejected"`
}

// ReplayTrack runs a recorded track through fresh detectors using the
// track's own timestamps. Rejected fixes are counted and skipped.
func ReplayTrack(track []ingestion.TrackPoint, imm detector.ImmobilityConfig, fall detector.FallConfig) ReplayResult {
	immobility := detector.NewImmobilityDetector(imm)
	falls := detector.NewFallDetector(fall)

	var res ReplayResult
	for _, tp := range track {
		res.Samples++

		immobile, err := immobility.UpdatePositionAt(tp.Position, tp.At)
		if err != nil {
			slog.Warn("fix rejected", "at", tp.At, "error", err)
			res.Rejected++
			continue
		}
		if immobile {
			res.Events = append(res.Events, ReplayEvent{At: tp.At, Kind: models.IncidentKindImmobility, Position: tp.Position})
		}

		ev, err := falls.UpdatePositionAt(tp.Position, tp.At)
		if err != nil {
			slog.Warn("fix rejected by fall detector", "at", tp.At, "error", err)
			continue
		}
		if ev != nil {
			res.Events = append(res.Events, ReplayEvent{At: tp.At, Kind: models.IncidentKindFall, Position: tp.Position, Fall: ev})
			continue
		}
		if post, _ := falls.CheckPostFallStatusAt(tp.Position, tp.At); post != nil {
			res.Events = append(res.Events, ReplayEvent{At: tp.At, Kind: models.IncidentKindPostFall, Position: tp.Position, PostFall: post})
		}
	}
	return res
}
