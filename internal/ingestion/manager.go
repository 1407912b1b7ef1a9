package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/go-guardian/internal/geo"
)

// PositionSource yields the current GPS fix. ok is false when no fix is
// available this tick.
type PositionSource interface {
	Name() string
	Current(ctx context.Context) (p geo.Point, ok bool, err error)
}

type Fix struct {
	Position geo.Point
	At       time.Time
	Source   string
}

// Manager samples every source once per period and hands fixes to sink.
type Manager struct {
	sources []PositionSource
	period  time.Duration
	sink    func(Fix)
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewManager(period time.Duration, sink func(Fix), sources ...PositionSource) *Manager {
	return &Manager{
		sources: sources,
		period:  period,
		sink:    sink,
		now:     time.Now,
	}
}

func (m *Manager) Start(ctx context.Context) {
	for _, src := range m.sources {
		m.wg.Add(1)
		go m.runPoller(ctx, src)
	}
}

func (m *Manager) runPoller(ctx context.Context, src PositionSource) {
	defer m.wg.Done()
	slog.Info("starting poller", "source", src.Name(), "interval", m.period)

	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx, src)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "source", src.Name())
			return
		case <-ticker.C:
			m.poll(ctx, src)
		}
	}
}

func (m *Manager) poll(ctx context.Context, src PositionSource) {
	p, ok, err := src.Current(ctx)
	if err != nil {
		slog.Error("poll failed", "source", src.Name(), "error", err)
		return
	}
	if !ok {
		slog.Debug("no fix available", "source", src.Name())
		return
	}
	if err := p.Validate(); err != nil {
		slog.Warn("discarding invalid fix", "source", src.Name(), "error", err)
		return
	}

	m.sink(Fix{Position: p, At: m.now(), Source: src.Name()})
}

func (m *Manager) Stop() {
	m.wg.Wait()
	slog.Info("ingestion manager stopped")
}
