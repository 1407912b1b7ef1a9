package monitor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-guardian/internal/broadcast"
	"github.com/mr1hm/go-guardian/internal/detector"
	"github.com/mr1hm/go-guardian/internal/geo"
	"github.com/mr1hm/go-guardian/internal/ingestion"
	"github.com/mr1hm/go-guardian/internal/models"
	"github.com/mr1hm/go-guardian/internal/repository"
	"github.com/mr1hm/go-guardian/internal/sequencer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	origin = geo.Point{Lat: 48.8566, Lon: 2.3522}
	t0     = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
)

func north(p geo.Point, meters float64) geo.Point {
	return geo.Point{Lat: p.Lat + meters/(geo.EarthRadius*math.Pi/180), Lon: p.Lon}
}

// memRepo implements repository.IncidentRepository in memory.
type memRepo struct {
	mu        sync.Mutex
	incidents map[string]*models.Incident
}

func newMemRepo() *memRepo {
	return &memRepo{incidents: make(map[string]*models.Incident)}
}

func (r *memRepo) Add(_ context.Context, inc *models.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inc
	r.incidents[inc.ID] = &cp
	return nil
}

func (r *memRepo) UpdateOutcome(_ context.Context, id, outcome, description string, urgency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return repository.ErrNotFound
	}
	inc.Outcome = outcome
	inc.Urgency = urgency
	if description != "" {
		inc.Description = description
	}
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*models.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, _ repository.Filter) ([]models.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Incident
	for _, inc := range r.incidents {
		out = append(out, *inc)
	}
	return out, nil
}

// byKind returns the incidents of kind that got a confirmation cycle.
func (r *memRepo) byKind(kind models.IncidentKind) []models.Incident {
	all, _ := r.List(context.Background(), repository.Filter{})
	var out []models.Incident
	for _, inc := range all {
		if inc.Kind == kind && inc.Outcome != models.OutcomeSuppressed {
			out = append(out, inc)
		}
	}
	return out
}

func (r *memRepo) suppressed(kind models.IncidentKind) []models.Incident {
	all, _ := r.List(context.Background(), repository.Filter{})
	var out []models.Incident
	for _, inc := range all {
		if inc.Kind == kind && inc.Outcome == models.OutcomeSuppressed {
			out = append(out, inc)
		}
	}
	return out
}

// replyingPrompter answers every confirmation prompt with reply. An empty
// reply leaves the prompt unanswered.
type replyingPrompter struct {
	inbox *sequencer.Inbox
	reply string

	mu      sync.Mutex
	prompts []sequencer.Prompt
}

func (p *replyingPrompter) Prompt(_ context.Context, pr sequencer.Prompt) error {
	p.mu.Lock()
	p.prompts = append(p.prompts, pr)
	p.mu.Unlock()
	if p.reply != "" && pr.Stage == sequencer.StateAwaitingConfirmation {
		p.inbox.Push(p.reply)
	}
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) kinds() []models.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.NotificationKind
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

type recordingStatus struct {
	mu   sync.Mutex
	last models.Status
	n    int
	err  error
}

func (s *recordingStatus) Save(_ context.Context, st models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = st
	s.n++
	return s.err
}

type harness struct {
	mon      *Monitor
	seq      *sequencer.Sequencer
	repo     *memRepo
	notifier *recordingNotifier
	prompter *replyingPrompter
	status   *recordingStatus
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, reply string, imm detector.ImmobilityConfig) *harness {
	t.Helper()

	inbox := sequencer.NewInbox(4)
	h := &harness{
		repo:     newMemRepo(),
		notifier: &recordingNotifier{},
		prompter: &replyingPrompter{inbox: inbox, reply: reply},
		status:   &recordingStatus{},
	}
	h.seq = sequencer.New(sequencer.Config{
		PrimaryTimeout:   150 * time.Millisecond,
		FallTimeout:      100 * time.Millisecond,
		DetailTimeout:    50 * time.Millisecond,
		AnalysisTimeout:  time.Second,
		NotifyOnResolved: true,
		FollowUp:         sequencer.FollowUpDelays{Critical: time.Hour, Severe: time.Hour, Moderate: time.Hour, Light: time.Hour},
	}, inbox, h.prompter, h.notifier, nil)

	h.mon = New(Config{
		UserID:     "alice",
		Immobility: imm,
		Fall:       detector.DefaultFallConfig(),
		Keywords:   []string{"help", "au secours"},
	}, h.seq, h.repo, nil, h.status)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.mon.Start(ctx)

	t.Cleanup(func() {
		cancel()
		h.mon.Stop()
		h.seq.Stop()
	})
	return h
}

func (h *harness) feed(t *testing.T, fixes ...ingestion.Fix) {
	t.Helper()
	for _, f := range fixes {
		require.True(t, h.mon.SubmitPosition(f))
	}
}

func fix(p geo.Point, at time.Time) ingestion.Fix {
	return ingestion.Fix{Position: p, At: at, Source: "test"}
}

func TestMonitor_FallConfirmedOK(t *testing.T) {
	h := newHarness(t, "oui ça va", detector.DefaultImmobilityConfig())

	// 36 km/h then a near-total stop within a second
	p1 := north(origin, 10)
	h.feed(t,
		fix(origin, t0),
		fix(p1, t0.Add(time.Second)),
		fix(north(p1, 0.2), t0.Add(2*time.Second)),
	)

	require.Eventually(t, func() bool {
		falls := h.repo.byKind(models.IncidentKindFall)
		return len(falls) == 1 && falls[0].Outcome == models.OutcomeConfirmedOK
	}, 2*time.Second, 10*time.Millisecond)

	inc := h.repo.byKind(models.IncidentKindFall)[0]
	assert.Equal(t, string(detector.FallTypeHighSpeed), inc.FallType)
	assert.Equal(t, string(detector.SeverityCritical), inc.Severity)
	assert.NotEmpty(t, inc.ID)

	require.Eventually(t, func() bool {
		return !h.mon.Status().FallArmed
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []models.NotificationKind{models.NotificationResolved}, h.notifier.kinds())
}

func TestMonitor_KeywordTimesOut(t *testing.T) {
	h := newHarness(t, "", detector.DefaultImmobilityConfig())

	h.feed(t, fix(origin, t0))
	require.Eventually(t, func() bool {
		return h.mon.Status().Position != nil
	}, time.Second, 5*time.Millisecond)

	require.True(t, h.mon.SubmitPhrase("Au secours !"))

	require.Eventually(t, func() bool {
		kw := h.repo.byKind(models.IncidentKindKeyword)
		return len(kw) == 1 && kw[0].Outcome == models.OutcomeTimedOut
	}, 2*time.Second, 10*time.Millisecond)

	inc := h.repo.byKind(models.IncidentKindKeyword)[0]
	assert.Equal(t, origin, inc.Position())
	assert.False(t, inc.NoPosition)
	assert.Equal(t, string(detector.SeveritySevere), inc.Severity)
	assert.Equal(t, []models.NotificationKind{models.NotificationAlert}, h.notifier.kinds())
	assert.Equal(t, 1, h.seq.PendingFollowUps())
}

func TestMonitor_KeywordBeforeAnyFix(t *testing.T) {
	h := newHarness(t, "", detector.DefaultImmobilityConfig())

	require.True(t, h.mon.SubmitPhrase("help"))

	require.Eventually(t, func() bool {
		kw := h.repo.byKind(models.IncidentKindKeyword)
		return len(kw) == 1 && kw[0].Outcome == models.OutcomeTimedOut
	}, 2*time.Second, 10*time.Millisecond)

	inc := h.repo.byKind(models.IncidentKindKeyword)[0]
	assert.True(t, inc.NoPosition)

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	require.Len(t, h.notifier.sent, 1)
	assert.NotContains(t, h.notifier.sent[0].Metadata, "maps_url")
}

func TestMonitor_IgnoresOrdinarySpeech(t *testing.T) {
	h := newHarness(t, "", detector.DefaultImmobilityConfig())

	h.mon.SubmitPhrase("helpful weather today")
	h.mon.SubmitPhrase("")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.repo.byKind(models.IncidentKindKeyword))
}

func TestMonitor_ImmobilitySuppressesDuplicates(t *testing.T) {
	h := newHarness(t, "", detector.ImmobilityConfig{DistanceThresholdM: 10, TimeThreshold: 20 * time.Second})

	// crosses the threshold at 30s, then again at 60s while the first
	// cycle is still waiting
	for i := 0; i <= 6; i++ {
		h.feed(t, fix(origin, t0.Add(time.Duration(i)*10*time.Second)))
	}

	require.Eventually(t, func() bool {
		imm := h.repo.byKind(models.IncidentKindImmobility)
		return len(imm) == 1 && imm[0].Outcome == models.OutcomeTimedOut
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, h.repo.byKind(models.IncidentKindImmobility), 1)

	// the second crossing is kept on record without a cycle
	dup := h.repo.suppressed(models.IncidentKindImmobility)
	require.Len(t, dup, 1)
	assert.Contains(t, dup[0].Description, h.repo.byKind(models.IncidentKindImmobility)[0].ID)
	assert.Equal(t, uint64(1), h.mon.Status().Suppressed)
	assert.Equal(t, uint64(1), h.mon.Status().Incidents)

	// released once the cycle ended
	for i := 7; i <= 9; i++ {
		h.feed(t, fix(origin, t0.Add(time.Duration(i)*10*time.Second)))
	}
	require.Eventually(t, func() bool {
		return len(h.repo.byKind(models.IncidentKindImmobility)) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMonitor_RejectsOutOfOrderFix(t *testing.T) {
	h := newHarness(t, "", detector.DefaultImmobilityConfig())

	h.feed(t, fix(origin, t0.Add(time.Minute)))
	h.feed(t, fix(north(origin, 500), t0))

	require.Eventually(t, func() bool {
		return h.mon.Status().Positions == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	st := h.mon.Status()
	require.NotNil(t, st.Position)
	assert.Equal(t, origin, *st.Position)
}

func TestMonitor_StatusCached(t *testing.T) {
	h := newHarness(t, "", detector.DefaultImmobilityConfig())
	h.status.err = errors.New("redis down")

	h.feed(t, fix(origin, t0), fix(origin, t0.Add(5*time.Second)))

	require.Eventually(t, func() bool {
		h.status.mu.Lock()
		defer h.status.mu.Unlock()
		return h.status.n == 2
	}, time.Second, 5*time.Millisecond)

	h.status.mu.Lock()
	last := h.status.last
	h.status.mu.Unlock()

	assert.Equal(t, "alice", last.UserID)
	require.NotNil(t, last.Position)
	assert.Equal(t, origin, *last.Position)
	assert.Equal(t, 5.0, last.StaticSeconds)
	assert.Equal(t, uint64(2), last.Positions)
	assert.Equal(t, "idle", last.SequencerState)
	assert.Zero(t, last.QueuedCycles)
	assert.Zero(t, last.PendingReplies)
	assert.Zero(t, last.DroppedReplies)
}

func TestBroadcastPrompter(t *testing.T) {
	b := broadcast.NewBroadcaster()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	p := NewBroadcastPrompter(b)
	require.NoError(t, p.Prompt(context.Background(), sequencer.Prompt{
		Trigger: sequencer.Trigger{IncidentID: "inc_9", Kind: models.IncidentKindFall},
		Stage:   sequencer.StateAwaitingConfirmation,
		Message: "Are you OK?",
	}))

	select {
	case e := <-ch:
		assert.Equal(t, broadcast.EventPrompt, e.Type)
		assert.Equal(t, "Are you OK?", e.Message)
		assert.Equal(t, "inc_9", e.Incident.ID)
	case <-time.After(time.Second):
		t.Fatal("prompt not broadcast")
	}
}
