package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/go-guardian/internal/models"
	"github.com/mr1hm/go-guardian/internal/worker"
)

const sendTimeout = 30 * time.Second

type delivery struct {
	sink Sink
	msg  Message
}

// Dispatcher fans notifications out to every sink on a worker pool. Sink
// failures are logged and never reach the caller.
type Dispatcher struct {
	userName string
	sinks    []Sink
	pool     *worker.Pool[delivery]
}

func NewDispatcher(userName string, workers, bufferSize int, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{
		userName: userName,
		sinks:    sinks,
	}
	d.pool = worker.NewPool("notify", workers, bufferSize, d.deliver)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Notify formats n and queues one delivery per sink without blocking.
func (d *Dispatcher) Notify(_ context.Context, n models.Notification) error {
	msg := Format(n, d.userName)

	var errs []error
	for _, s := range d.sinks {
		if err := d.pool.TrySubmit(delivery{sink: s, msg: msg}); err != nil {
			slog.Warn("notification dropped", "sink", s.Name(), "incident_id", n.IncidentID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, job delivery) error {
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := job.sink.Send(sctx, job.msg); err != nil {
		return fmt.Errorf("%s sink, incident %s: %w", job.sink.Name(), job.msg.IncidentID, err)
	}
	slog.Debug("notification delivered", "sink", job.sink.Name(), "incident_id", job.msg.IncidentID, "kind", job.msg.Kind)
	return nil
}
