package detector

import (
	"fmt"
	"time"

	"github.com/mr1hm/go-guardian/internal/geo"
)

type ImmobilityConfig struct {
	DistanceThresholdM float64
	TimeThreshold      time.Duration
}

func DefaultImmobilityConfig() ImmobilityConfig {
	return ImmobilityConfig{
		DistanceThresholdM: 10,
		TimeThreshold:      300 * time.Second,
	}
}

// ImmobilityDetector accumulates the time spent within DistanceThresholdM of
// the previous fix and signals once that time exceeds TimeThreshold.
//
// Samples must be applied in non-decreasing time order. It is not safe for
// concurrent use.
type ImmobilityDetector struct {
	cfg ImmobilityConfig

	hasBaseline   bool
	lastPosition  geo.Point
	lastTime      time.Time
	staticSeconds float64
}

func NewImmobilityDetector(cfg ImmobilityConfig) *ImmobilityDetector {
	return &ImmobilityDetector{cfg: cfg}
}

func (d *ImmobilityDetector) UpdatePosition(p geo.Point) (bool, error) {
	return d.UpdatePositionAt(p, time.Now())
}

// UpdatePositionAt applies a fix observed at t and reports whether the
// immobility alert fires.
func (d *ImmobilityDetector) UpdatePositionAt(p geo.Point, t time.Time) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if !d.hasBaseline {
		d.hasBaseline = true
		d.lastPosition = p
		d.lastTime = t
		return false, nil
	}

	if t.Before(d.lastTime) {
		return false, fmt.Errorf("%w: timestamp %s precedes last sample %s", ErrInvalidInput, t.Format(time.RFC3339Nano), d.lastTime.Format(time.RFC3339Nano))
	}

	dist := geo.DistanceMeters(d.lastPosition, p)
	elapsed := t.Sub(d.lastTime).Seconds()

	d.lastPosition = p
	d.lastTime = t

	if dist >= d.cfg.DistanceThresholdM {
		d.staticSeconds = 0
		return false, nil
	}

	d.staticSeconds += elapsed
	if d.staticSeconds > d.cfg.TimeThreshold.Seconds() {
		d.staticSeconds = 0
		return true, nil
	}
	return false, nil
}

// StaticSeconds returns the stationary time accumulated so far.
func (d *ImmobilityDetector) StaticSeconds() float64 {
	return d.staticSeconds
}

func (d *ImmobilityDetector) Reset() {
	d.hasBaseline = false
	d.lastPosition = geo.Point{}
	d.lastTime = time.Time{}
	d.staticSeconds = 0
}
