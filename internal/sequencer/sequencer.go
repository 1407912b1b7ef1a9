// Package sequencer runs the confirmation cycle that follows a detector
// signal: ask the wearer, wait for an answer within a bounded window, then
// resolve or escalate.
package sequencer

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-guardian/internal/detector"
	"github.com/mr1hm/go-guardian/internal/geo"
	"github.com/mr1hm/go-guardian/internal/models"
)

type State int32

const (
	StateIdle State = iota
	StateAwaitingConfirmation
	StateAwaitingDetail
	StateResolved
	StateEscalating
)

func (s State) String() string {
	switch s {
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateAwaitingDetail:
		return "awaiting_detail"
	case StateResolved:
		return "resolved"
	case StateEscalating:
		return "escalating"
	default:
		return "idle"
	}
}

type OutcomeKind int

const (
	OutcomeConfirmedOK OutcomeKind = iota
	OutcomeConfirmedProblem
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeConfirmedOK:
		return models.OutcomeConfirmedOK
	case OutcomeConfirmedProblem:
		return models.OutcomeConfirmedProblem
	default:
		return models.OutcomeTimedOut
	}
}

// Outcome is the single result of a confirmation cycle. Description is only
// set for OutcomeConfirmedProblem; Analysis is set when the analyzer
// enriched the escalation.
type Outcome struct {
	Kind        OutcomeKind
	Description string
	Analysis    *models.Analysis
}

// Prompt asks the wearer a question through whatever channel reaches them
// (speech, screen, SMS).
type Prompt struct {
	Trigger Trigger
	Stage   State
	Message string
	Timeout time.Duration
}

type Prompter interface {
	Prompt(ctx context.Context, p Prompt) error
}

// Notifier delivers a notification. Implementations must not block on
// delivery; the sequencer does not wait for it to land.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.Analysis, error)
}

type Config struct {
	PrimaryTimeout   time.Duration
	FallTimeout      time.Duration
	DetailTimeout    time.Duration
	AnalysisTimeout  time.Duration
	NotifyOnResolved bool
	FollowUp         FollowUpDelays
}

// FollowUpDelays is how long after an escalation the follow-up
// notification goes out, per severity.
type FollowUpDelays struct {
	Critical time.Duration
	Severe   time.Duration
	Moderate time.Duration
	Light    time.Duration
}

func DefaultConfig() Config {
	return Config{
		PrimaryTimeout:   600 * time.Second,
		FallTimeout:      30 * time.Second,
		DetailTimeout:    120 * time.Second,
		AnalysisTimeout:  20 * time.Second,
		NotifyOnResolved: true,
		FollowUp: FollowUpDelays{
			Critical: time.Minute,
			Severe:   3 * time.Minute,
			Moderate: 5 * time.Minute,
			Light:    10 * time.Minute,
		},
	}
}

// Delay picks the follow-up delay from the trigger severity, shortened when
// the analyzer rated the situation more urgent.
func (f FollowUpDelays) Delay(sev detector.Severity, analysis *models.Analysis) time.Duration {
	d := f.forSeverity(sev)
	if analysis == nil {
		return d
	}

	var fromUrgency detector.Severity
	switch u := analysis.UrgencyLevel; {
	case u >= 9:
		fromUrgency = detector.SeverityCritical
	case u >= 7:
		fromUrgency = detector.SeveritySevere
	case u >= 4:
		fromUrgency = detector.SeverityModerate
	default:
		fromUrgency = detector.SeverityLight
	}
	return min(d, f.forSeverity(fromUrgency))
}

func (f FollowUpDelays) forSeverity(sev detector.Severity) time.Duration {
	switch sev {
	case detector.SeverityCritical:
		return f.Critical
	case detector.SeveritySevere:
		return f.Severe
	case detector.SeverityLight:
		return f.Light
	default:
		return f.Moderate
	}
}

// Sequencer runs one confirmation cycle at a time for a single wearer.
type Sequencer struct {
	cfg      Config
	inbox    *Inbox
	prompter Prompter
	notifier Notifier
	analyzer Analyzer // optional

	cycle sync.Mutex
	state atomic.Int32

	fmu       sync.Mutex
	followUps map[uint64]*time.Timer
	nextID    uint64
	stopped   bool
	wg        sync.WaitGroup
}

// New wires a sequencer. analyzer may be nil, escalations then forward the
// raw description.
func New(cfg Config, inbox *Inbox, prompter Prompter, notifier Notifier, analyzer Analyzer) *Sequencer {
	return &Sequencer{
		cfg:       cfg,
		inbox:     inbox,
		prompter:  prompter,
		notifier:  notifier,
		analyzer:  analyzer,
		followUps: make(map[uint64]*time.Timer),
	}
}

func (s *Sequencer) State() State {
	return State(s.state.Load())
}

// PendingReplies is the number of replies waiting in the inbox.
func (s *Sequencer) PendingReplies() int {
	return s.inbox.Len()
}

// DroppedReplies counts replies lost to a full inbox.
func (s *Sequencer) DroppedReplies() uint64 {
	return s.inbox.Dropped()
}

func (s *Sequencer) setState(st State) {
	s.state.Store(int32(st))
}

// Run executes one confirmation cycle for trig and returns its outcome.
// Concurrent calls are serialized. When ctx is cancelled mid-wait Run
// returns immediately with ctx.Err() and does not escalate.
func (s *Sequencer) Run(ctx context.Context, trig Trigger) (Outcome, error) {
	s.cycle.Lock()
	defer s.cycle.Unlock()
	defer s.setState(StateIdle)

	if n := s.inbox.Drain(); n > 0 {
		slog.Debug("discarded stale replies", "count", n, "incident_id", trig.IncidentID)
	}

	timeout := s.cfg.PrimaryTimeout
	if trig.isFallRelated() {
		timeout = s.cfg.FallTimeout
	}

	s.setState(StateAwaitingConfirmation)
	s.prompt(ctx, Prompt{
		Trigger: trig,
		Stage:   StateAwaitingConfirmation,
		Message: confirmationMessage(trig),
		Timeout: timeout,
	})

	reply, ok, err := s.inbox.Wait(ctx, timeout)
	if err != nil {
		return Outcome{Kind: OutcomeTimedOut}, err
	}
	if !ok {
		slog.Warn("no reply to confirmation", "incident_id", trig.IncidentID, "timeout", timeout)
		return s.escalate(ctx, trig, Outcome{Kind: OutcomeTimedOut}), nil
	}

	var description string
	switch ClassifyReply(reply) {
	case ReplyAffirmative:
		s.setState(StateResolved)
		s.resolve(ctx, trig)
		return Outcome{Kind: OutcomeConfirmedOK}, nil

	case ReplyNegative:
		s.setState(StateAwaitingDetail)
		s.prompt(ctx, Prompt{
			Trigger: trig,
			Stage:   StateAwaitingDetail,
			Message: "Describe what is wrong. Help is being prepared.",
			Timeout: s.cfg.DetailTimeout,
		})

		detail, ok, err := s.inbox.Wait(ctx, s.cfg.DetailTimeout)
		if err != nil {
			return Outcome{Kind: OutcomeConfirmedProblem}, err
		}
		if !ok {
			slog.Warn("no detail provided", "incident_id", trig.IncidentID, "timeout", s.cfg.DetailTimeout)
		}
		description = detail

	default:
		description = reply
	}

	return s.escalate(ctx, trig, Outcome{Kind: OutcomeConfirmedProblem, Description: description}), nil
}

func (s *Sequencer) prompt(ctx context.Context, p Prompt) {
	if s.prompter == nil {
		return
	}
	if err := s.prompter.Prompt(ctx, p); err != nil {
		slog.Warn("prompt failed", "incident_id", p.Trigger.IncidentID, "stage", p.Stage, "error", err)
	}
}

func (s *Sequencer) resolve(ctx context.Context, trig Trigger) {
	slog.Info("wearer confirmed ok", "incident_id", trig.IncidentID, "trigger", trig.Kind)
	if !s.cfg.NotifyOnResolved {
		return
	}

	s.notify(ctx, models.Notification{
		Kind:        models.NotificationResolved,
		Priority:    models.PriorityLow,
		IncidentID:  trig.IncidentID,
		Trigger:     trig.Kind,
		Outcome:     models.OutcomeConfirmedOK,
		Position:    trig.Position,
		Description: trig.Summary(),
		Metadata:    trig.metadata(),
		CreatedAt:   time.Now(),
	})
}

// escalate enriches the outcome when an analyzer is available, hands the
// alert to the notifier and schedules the follow-up. It never blocks on
// delivery.
func (s *Sequencer) escalate(ctx context.Context, trig Trigger, out Outcome) Outcome {
	s.setState(StateEscalating)

	if out.Description != "" {
		out.Analysis = s.analyze(ctx, trig, out.Description)
	}

	n := models.Notification{
		Kind:        models.NotificationAlert,
		Priority:    models.PriorityHigh,
		IncidentID:  trig.IncidentID,
		Trigger:     trig.Kind,
		Outcome:     out.Kind.String(),
		Position:    trig.Position,
		Description: out.Description,
		Metadata:    trig.metadata(),
		CreatedAt:   time.Now(),
	}
	if n.Description == "" {
		n.Description = trig.Summary()
	}
	if out.Analysis != nil {
		n.Actions = out.Analysis.RecommendedActions
		n.Metadata["urgency"] = strconv.Itoa(out.Analysis.UrgencyLevel)
		if out.Analysis.Summary != "" {
			n.Metadata["analysis_summary"] = out.Analysis.Summary
		}
	}

	s.notify(ctx, n)

	delay := s.cfg.FollowUp.Delay(trig.Severity(), out.Analysis)
	followUp := n
	followUp.Kind = models.NotificationFollowUp
	followUp.Metadata = maps.Clone(n.Metadata)
	followUp.Metadata["follow_up_after"] = delay.String()
	s.scheduleFollowUp(followUp, delay)

	slog.Info("escalated",
		"incident_id", trig.IncidentID,
		"trigger", trig.Kind,
		"outcome", out.Kind.String(),
		"follow_up_in", delay,
	)
	return out
}

func (s *Sequencer) analyze(ctx context.Context, trig Trigger, description string) *models.Analysis {
	if s.analyzer == nil {
		return nil
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.AnalysisTimeout)
	defer cancel()

	var pos *geo.Point
	if !trig.NoFix {
		p := trig.Position
		pos = &p
	}
	analysis, err := s.analyzer.Analyze(actx, models.AnalysisRequest{
		Description: description,
		Position:    pos,
		At:          trig.DetectedAt,
		Trigger:     trig.Kind,
	})
	if err != nil {
		slog.Warn("analysis unavailable, forwarding raw description", "incident_id", trig.IncidentID, "error", err)
		return nil
	}
	return analysis
}

func (s *Sequencer) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		slog.Error("notification failed", "incident_id", n.IncidentID, "kind", n.Kind, "error", err)
	}
}

func (s *Sequencer) scheduleFollowUp(n models.Notification, delay time.Duration) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	if s.stopped {
		return
	}

	id := s.nextID
	s.nextID++
	s.wg.Add(1)
	s.followUps[id] = time.AfterFunc(delay, func() {
		defer s.wg.Done()

		s.fmu.Lock()
		delete(s.followUps, id)
		stopped := s.stopped
		s.fmu.Unlock()
		if stopped {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n.CreatedAt = time.Now()
		s.notify(ctx, n)
	})
}

// PendingFollowUps returns the number of scheduled follow-ups not yet sent.
func (s *Sequencer) PendingFollowUps() int {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	return len(s.followUps)
}

// Stop cancels pending follow-ups and waits for any that already started.
func (s *Sequencer) Stop() {
	s.fmu.Lock()
	s.stopped = true
	for id, t := range s.followUps {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.followUps, id)
	}
	s.fmu.Unlock()

	s.wg.Wait()
}

func confirmationMessage(trig Trigger) string {
	switch trig.Kind {
	case models.IncidentKindFall:
		return "A fall was detected. Are you OK? Answer yes or no."
	case models.IncidentKindPostFall:
		return "You have not moved since your fall. Are you OK? Answer yes or no."
	case models.IncidentKindImmobility:
		return "You have not moved for a while. Is everything OK? Answer yes or no."
	case models.IncidentKindKeyword:
		return "We heard a call for help. Are you OK? Answer yes or no."
	default:
		return "Are you OK? Answer yes or no."
	}
}
