// Package monitor feeds GPS fixes and recognized phrases through the
// detectors and hands every alarm to the confirmation sequencer.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-guardian/internal/broadcast"
	"github.com/mr1hm/go-guardian/internal/detector"
	"github.com/mr1hm/go-guardian/internal/ingestion"
	"github.com/mr1hm/go-guardian/internal/models"
	"github.com/mr1hm/go-guardian/internal/repository"
	"github.com/mr1hm/go-guardian/internal/sequencer"
	"github.com/mr1hm/go-guardian/internal/worker"
)

const storeTimeout = 5 * time.Second

// Runner runs confirmation cycles. *sequencer.Sequencer implements it.
type Runner interface {
	Run(ctx context.Context, trig sequencer.Trigger) (sequencer.Outcome, error)
	State() sequencer.State
	PendingFollowUps() int
	PendingReplies() int
	DroppedReplies() uint64
}

type StatusStore interface {
	Save(ctx context.Context, st models.Status) error
}

type Config struct {
	UserID     string
	Immobility detector.ImmobilityConfig
	Fall       detector.FallConfig
	Keywords   []string
	// QueueSize bounds the triggers waiting for a confirmation cycle.
	QueueSize int
	// InputBuffer bounds unprocessed fixes and phrases.
	InputBuffer int
}

type Monitor struct {
	cfg         Config
	seq         Runner
	repo        repository.IncidentRepository
	broadcaster *broadcast.Broadcaster // optional
	status      StatusStore            // optional
	keywords    *KeywordMatcher

	positions chan ingestion.Fix
	phrases   chan string
	alerts    *worker.Pool[sequencer.Trigger]

	mu         sync.Mutex
	immobility *detector.ImmobilityDetector
	fall       *detector.FallDetector
	lastFix    *ingestion.Fix
	inflight   map[models.IncidentKind]string

	positionCount   atomic.Uint64
	incidentCount   atomic.Uint64
	suppressedCount atomic.Uint64

	now   func() time.Time
	newID func() string
	wg    sync.WaitGroup
}

func New(cfg Config, seq Runner, repo repository.IncidentRepository, b *broadcast.Broadcaster, status StatusStore) *Monitor {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 8
	}
	if cfg.InputBuffer < 1 {
		cfg.InputBuffer = 64
	}

	m := &Monitor{
		cfg:         cfg,
		seq:         seq,
		repo:        repo,
		broadcaster: b,
		status:      status,
		keywords:    NewKeywordMatcher(cfg.Keywords),
		positions:   make(chan ingestion.Fix, cfg.InputBuffer),
		phrases:     make(chan string, cfg.InputBuffer),
		immobility:  detector.NewImmobilityDetector(cfg.Immobility),
		fall:        detector.NewFallDetector(cfg.Fall),
		inflight:    make(map[models.IncidentKind]string),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	// one worker: cycles never overlap and run in detection order
	m.alerts = worker.NewPool("alerts", 1, cfg.QueueSize, m.runCycle)
	return m
}

func (m *Monitor) Start(ctx context.Context) {
	m.alerts.Start(ctx)

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop waits for the loop to exit. Cancel the start context first.
func (m *Monitor) Stop() {
	m.wg.Wait()
	m.alerts.Stop()
	slog.Info("monitor stopped")
}

// SubmitPosition queues a fix without blocking. It reports false when the
// input buffer is full.
func (m *Monitor) SubmitPosition(f ingestion.Fix) bool {
	select {
	case m.positions <- f:
		return true
	default:
		slog.Warn("position dropped, monitor busy", "source", f.Source)
		return false
	}
}

// SubmitPhrase queues a recognized phrase without blocking.
func (m *Monitor) SubmitPhrase(text string) bool {
	select {
	case m.phrases <- text:
		return true
	default:
		slog.Warn("phrase dropped, monitor busy")
		return false
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()
	slog.Info("monitor started", "user_id", m.cfg.UserID)

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-m.positions:
			m.handlePosition(ctx, f)
		case text := <-m.phrases:
			m.handlePhrase(ctx, text)
		}
	}
}

func (m *Monitor) handlePosition(ctx context.Context, f ingestion.Fix) {
	var triggers []sequencer.Trigger

	m.mu.Lock()
	immobile, err := m.immobility.UpdatePositionAt(f.Position, f.At)
	if err != nil {
		m.mu.Unlock()
		slog.Warn("fix rejected", "source", f.Source, "error", err)
		return
	}
	if immobile {
		triggers = append(triggers, sequencer.Trigger{
			Kind:       models.IncidentKindImmobility,
			Position:   f.Position,
			DetectedAt: f.At,
		})
	}

	fall, err := m.fall.UpdatePositionAt(f.Position, f.At)
	if err != nil {
		slog.Warn("fall detector rejected fix", "source", f.Source, "error", err)
	}
	if fall != nil {
		triggers = append(triggers, sequencer.Trigger{
			Kind:       models.IncidentKindFall,
			Position:   f.Position,
			DetectedAt: f.At,
			Fall:       fall,
		})
	} else if m.fall.FallDetected() {
		post, err := m.fall.CheckPostFallStatusAt(f.Position, f.At)
		if err != nil {
			slog.Warn("post-fall check failed", "error", err)
		}
		if post != nil {
			triggers = append(triggers, sequencer.Trigger{
				Kind:       models.IncidentKindPostFall,
				Position:   f.Position,
				DetectedAt: f.At,
				PostFall:   post,
			})
		}
	}

	fix := f
	m.lastFix = &fix
	m.mu.Unlock()

	m.positionCount.Add(1)
	for _, trig := range triggers {
		m.raise(ctx, trig)
	}
	m.saveStatus(ctx)
}

func (m *Monitor) handlePhrase(ctx context.Context, text string) {
	phrase, ok := m.keywords.Match(text)
	if !ok {
		slog.Debug("phrase ignored", "text", text)
		return
	}

	trig := sequencer.Trigger{
		Kind:       models.IncidentKindKeyword,
		DetectedAt: m.now(),
		Detail:     phrase,
	}
	m.mu.Lock()
	if m.lastFix != nil {
		trig.Position = m.lastFix.Position
	} else {
		trig.NoFix = true
	}
	m.mu.Unlock()

	m.raise(ctx, trig)
}

// raise records a trigger and queues its confirmation cycle. A trigger of a
// kind that already has a cycle queued or running is recorded as suppressed
// and gets no cycle of its own.
func (m *Monitor) raise(ctx context.Context, trig sequencer.Trigger) {
	m.mu.Lock()
	trig.IncidentID = m.newID()
	pendingID, busy := m.inflight[trig.Kind]
	if !busy {
		m.inflight[trig.Kind] = trig.IncidentID
	}
	m.mu.Unlock()

	inc := incidentFromTrigger(trig)
	if busy {
		inc.Outcome = models.OutcomeSuppressed
		inc.Description = fmt.Sprintf("%s (cycle %s already pending)", inc.Description, pendingID)
		m.store(ctx, inc)
		m.suppressedCount.Add(1)
		slog.Info("trigger suppressed, cycle already pending", "kind", trig.Kind, "incident_id", inc.ID, "pending_id", pendingID)
		return
	}
	m.store(ctx, inc)

	m.incidentCount.Add(1)
	m.broadcast(broadcast.EventIncident, inc, trig.Summary())
	slog.Warn("incident detected", "incident_id", inc.ID, "kind", inc.Kind, "severity", inc.Severity, "position", inc.Position().String())

	if err := m.alerts.TrySubmit(trig); err != nil {
		slog.Error("confirmation cycle not queued", "incident_id", inc.ID, "error", err)
		m.finish(trig, models.OutcomeCancelled, "", 0)
	}
}

func (m *Monitor) store(ctx context.Context, inc *models.Incident) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := m.repo.Add(sctx, inc); err != nil {
		slog.Error("error adding incident", "incident_id", inc.ID, "error", err)
	}
}

func (m *Monitor) runCycle(ctx context.Context, trig sequencer.Trigger) error {
	out, err := m.seq.Run(ctx, trig)
	if err != nil {
		m.finish(trig, models.OutcomeCancelled, "", 0)
		return err
	}

	urgency := 0
	if out.Analysis != nil {
		urgency = out.Analysis.UrgencyLevel
	}
	m.finish(trig, out.Kind.String(), out.Description, urgency)

	if out.Kind == sequencer.OutcomeConfirmedOK {
		m.mu.Lock()
		switch trig.Kind {
		case models.IncidentKindFall, models.IncidentKindPostFall:
			m.fall.ResetFallDetection()
		case models.IncidentKindImmobility:
			m.immobility.Reset()
		}
		m.mu.Unlock()
	}
	return nil
}

// finish stores the outcome and releases the trigger kind. It runs on its
// own context so shutdown still records cancelled cycles.
func (m *Monitor) finish(trig sequencer.Trigger, outcome, description string, urgency int) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := m.repo.UpdateOutcome(ctx, trig.IncidentID, outcome, description, urgency); err != nil {
		slog.Error("error updating incident outcome", "incident_id", trig.IncidentID, "error", err)
	}

	m.mu.Lock()
	if m.inflight[trig.Kind] == trig.IncidentID {
		delete(m.inflight, trig.Kind)
	}
	m.mu.Unlock()

	inc := incidentFromTrigger(trig)
	inc.Outcome = outcome
	inc.Urgency = urgency
	if description != "" {
		inc.Description = description
	}
	m.broadcast(broadcast.EventOutcome, inc, outcome)
	slog.Info("incident closed", "incident_id", trig.IncidentID, "outcome", outcome)
}

func (m *Monitor) broadcast(t broadcast.EventType, inc *models.Incident, msg string) {
	if m.broadcaster == nil {
		return
	}
	m.broadcaster.Broadcast(broadcast.Event{Type: t, Incident: inc, Message: msg})
}

func (m *Monitor) saveStatus(ctx context.Context) {
	if m.status == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := m.status.Save(sctx, m.Status()); err != nil {
		slog.Warn("error caching status", "error", err)
	}
}

// Status returns a snapshot of the detectors and the sequencer.
func (m *Monitor) Status() models.Status {
	m.mu.Lock()
	st := models.Status{
		UserID:        m.cfg.UserID,
		StaticSeconds: m.immobility.StaticSeconds(),
		FallArmed:     m.fall.FallDetected(),
	}
	if m.lastFix != nil {
		p := m.lastFix.Position
		st.Position = &p
		st.LastFixAt = m.lastFix.At
	}
	m.mu.Unlock()

	st.SequencerState = m.seq.State().String()
	st.PendingFollowUps = m.seq.PendingFollowUps()
	st.PendingReplies = m.seq.PendingReplies()
	st.DroppedReplies = m.seq.DroppedReplies()
	st.QueuedCycles = m.alerts.Pending()
	st.Positions = m.positionCount.Load()
	st.Incidents = m.incidentCount.Load()
	st.Suppressed = m.suppressedCount.Load()
	st.UpdatedAt = m.now()
	return st
}

func incidentFromTrigger(trig sequencer.Trigger) *models.Incident {
	inc := &models.Incident{
		ID:          trig.IncidentID,
		Kind:        trig.Kind,
		Severity:    string(trig.Severity()),
		Latitude:    trig.Position.Lat,
		Longitude:   trig.Position.Lon,
		NoPosition:  trig.NoFix,
		Description: trig.Summary(),
		Outcome:     models.OutcomePending,
		DetectedAt:  trig.DetectedAt,
	}
	if trig.Fall != nil {
		inc.FallType = string(trig.Fall.FallType)
	}
	return inc
}
