package detector

import (
	"fmt"
	"time"

	"github.com/mr1hm/go-guardian/internal/geo"
)

type FallType string

const (
	FallTypeBike      FallType = "bike_fall"
	FallTypeHighSpeed FallType = "high_speed_fall"
	FallTypeBlunt     FallType = "blunt_impact"
	FallTypeGeneral   FallType = "general_fall"
)

type Severity string

const (
	SeverityLight    Severity = "light"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 0 (light) to 3 (critical); unknown values rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityLight:
		return 0
	case SeverityModerate:
		return 1
	case SeveritySevere:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(s)
	return sev, sev.Rank() >= 0
}

const PostFallStatusProlongedImmobility = "prolonged_immobility"

type FallConfig struct {
	SpeedThresholdHighKmh    float64
	SpeedThresholdLowKmh     float64
	AccelerationThresholdMs2 float64
	StationaryTime           time.Duration
	HistoryCapacity          int
	// PostFallMovementM is the movement below which the wearer is
	// considered not to have moved since the fall.
	PostFallMovementM float64
}

func DefaultFallConfig() FallConfig {
	return FallConfig{
		SpeedThresholdHighKmh:    15,
		SpeedThresholdLowKmh:     2,
		AccelerationThresholdMs2: -8,
		StationaryTime:           30 * time.Second,
		HistoryCapacity:          10,
		PostFallMovementM:        5,
	}
}

// PositionSample is one accepted fix with the speed derived from the fix
// before it. The first sample of a history has no known speed.
type PositionSample struct {
	Position   geo.Point `json:"position"`
	Timestamp  time.Time `json:"timestamp"`
	SpeedKmh   float64   `json:"speed_kmh"`
	SpeedKnown bool      `json:"speed_known"`
}

type FallEvent struct {
	FallType         FallType  `json:"fall_type"`
	PreviousSpeedKmh float64   `json:"previous_speed_kmh"`
	CurrentSpeedKmh  float64   `json:"current_speed_kmh"`
	AccelerationMs2  float64   `json:"acceleration_ms2"`
	Severity         Severity  `json:"severity"`
	DetectedAt       time.Time `json:"detected_at"`
	Position         geo.Point `json:"position"`
}

type PostFallAlert struct {
	TimeSinceFallSeconds    float64   `json:"time_since_fall_seconds"`
	MovementSinceFallMeters float64   `json:"movement_since_fall_meters"`
	Status                  string    `json:"status"`
	Position                geo.Point `json:"position"`
}

// FallDetector derives speed and acceleration from consecutive fixes and
// flags brutal decelerations as falls. After a fall it watches for the
// wearer staying put.
//
// Samples must be applied in non-decreasing time order. It is not safe for
// concurrent use.
type FallDetector struct {
	cfg       FallConfig
	history   *Ring[PositionSample]
	distances *geo.DistanceCache

	fallDetected      bool
	fallDetectionTime time.Time
	postFallAlerted   bool
}

func NewFallDetector(cfg FallConfig) *FallDetector {
	return &FallDetector{
		cfg:       cfg,
		history:   NewRing[PositionSample](cfg.HistoryCapacity),
		distances: geo.NewDistanceCache(cfg.HistoryCapacity * 4),
	}
}

func (d *FallDetector) UpdatePosition(p geo.Point) (*FallEvent, error) {
	return d.UpdatePositionAt(p, time.Now())
}

// UpdatePositionAt applies a fix observed at now. It returns the fall the
// fix completes, if any. The fix is recorded in the history either way.
func (d *FallDetector) UpdatePositionAt(p geo.Point, now time.Time) (*FallEvent, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	last, ok := d.history.Last()
	if !ok {
		d.history.Push(PositionSample{Position: p, Timestamp: now})
		return nil, nil
	}
	if now.Before(last.Timestamp) {
		return nil, fmt.Errorf("%w: timestamp %s precedes last sample %s", ErrInvalidInput, now.Format(time.RFC3339Nano), last.Timestamp.Format(time.RFC3339Nano))
	}

	elapsed := now.Sub(last.Timestamp).Seconds()

	// a duplicate timestamp carries no motion; keep the previous speed as
	// the baseline for the next fix
	if elapsed <= 0 {
		d.history.Push(PositionSample{
			Position:   p,
			Timestamp:  now,
			SpeedKmh:   last.SpeedKmh,
			SpeedKnown: last.SpeedKnown,
		})
		return nil, nil
	}

	speed := geo.DistanceMeters(last.Position, p) / elapsed * 3.6

	var event *FallEvent
	if last.SpeedKnown {
		accel := (speed/3.6 - last.SpeedKmh/3.6) / elapsed

		if d.matchesFallPattern(last.SpeedKmh, speed, accel) {
			event = &FallEvent{
				FallType:         classifyFallType(last.SpeedKmh, accel),
				PreviousSpeedKmh: last.SpeedKmh,
				CurrentSpeedKmh:  speed,
				AccelerationMs2:  accel,
				Severity:         classifySeverity(last.SpeedKmh, accel),
				DetectedAt:       now,
				Position:         p,
			}
			d.fallDetected = true
			d.fallDetectionTime = now
			d.postFallAlerted = false
		}
	}

	d.history.Push(PositionSample{
		Position:   p,
		Timestamp:  now,
		SpeedKmh:   speed,
		SpeedKnown: true,
	})

	return event, nil
}

func (d *FallDetector) matchesFallPattern(prev, current, accel float64) bool {
	switch {
	// brutal stop from high speed
	case prev > d.cfg.SpeedThresholdHighKmh && current < d.cfg.SpeedThresholdLowKmh && accel < d.cfg.AccelerationThresholdMs2:
		return true
	// sudden stop after moderate motion
	case prev > 8.0 && current < 1.0 && accel < -5.0:
		return true
	// very high speed then near-total stop
	case prev > 25.0 && current < 3.0:
		return true
	}
	return false
}

func classifyFallType(prevSpeed, accel float64) FallType {
	switch {
	case prevSpeed > 20:
		return FallTypeHighSpeed
	case prevSpeed > 10:
		return FallTypeBike
	case accel < -10:
		return FallTypeBlunt
	default:
		return FallTypeGeneral
	}
}

func classifySeverity(prevSpeed, accel float64) Severity {
	score := 0

	switch {
	case prevSpeed > 20:
		score += 3
	case prevSpeed > 15:
		score += 2
	case prevSpeed > 10:
		score++
	}

	switch {
	case accel < -12:
		score += 3
	case accel < -8:
		score += 2
	case accel < -5:
		score++
	}

	switch {
	case score >= 5:
		return SeverityCritical
	case score >= 3:
		return SeveritySevere
	case score >= 1:
		return SeverityModerate
	default:
		return SeverityLight
	}
}

func (d *FallDetector) CheckPostFallStatus(p geo.Point) (*PostFallAlert, error) {
	return d.CheckPostFallStatusAt(p, time.Now())
}

// CheckPostFallStatusAt reports prolonged immobility after a detected fall.
// Movement is the path length over buffered samples taken at or after the
// fall, not the whole history, so motion leading into the fall never hides a
// motionless wearer. The alert fires at most once per fall;
// ResetFallDetection re-arms it.
func (d *FallDetector) CheckPostFallStatusAt(p geo.Point, now time.Time) (*PostFallAlert, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if !d.fallDetected || d.postFallAlerted {
		return nil, nil
	}

	sinceFall := now.Sub(d.fallDetectionTime).Seconds()
	movement := d.movementSinceFall()

	if sinceFall > d.cfg.StationaryTime.Seconds() && movement < d.cfg.PostFallMovementM {
		d.postFallAlerted = true
		return &PostFallAlert{
			TimeSinceFallSeconds:    sinceFall,
			MovementSinceFallMeters: movement,
			Status:                  PostFallStatusProlongedImmobility,
			Position:                p,
		}, nil
	}
	return nil, nil
}

// movementSinceFall sums the path length over the buffered samples taken at
// or after the fall.
func (d *FallDetector) movementSinceFall() float64 {
	var (
		total float64
		prev  *PositionSample
	)
	for _, s := range d.history.Slice() {
		if s.Timestamp.Before(d.fallDetectionTime) {
			continue
		}
		if prev != nil {
			total += d.distances.Distance(prev.Position, s.Position)
		}
		prev = &s
	}
	return total
}

func (d *FallDetector) ResetFallDetection() {
	d.fallDetected = false
	d.fallDetectionTime = time.Time{}
	d.postFallAlerted = false
}

func (d *FallDetector) FallDetected() bool {
	return d.fallDetected
}

// History returns a copy of the buffered samples, oldest first.
func (d *FallDetector) History() []PositionSample {
	return d.history.Slice()
}
