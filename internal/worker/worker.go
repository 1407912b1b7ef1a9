package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrPoolClosed = errors.New("worker pool closed")
	ErrQueueFull  = errors.New("worker queue full")
)

type ProcessFunc[T any] func(ctx context.Context, job T) error

// Pool runs jobs on a fixed number of goroutines. A pool with one worker
// processes jobs strictly in submission order.
type Pool[T any] struct {
	name       string
	numWorkers int
	jobs       chan T
	processor  ProcessFunc[T]
	wg         sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	quit     chan struct{}
	quitOnce sync.Once
}

func NewPool[T any](name string, numWorkers int, bufferSize int, processor ProcessFunc[T]) *Pool[T] {
	return &Pool[T]{
		name:       name,
		numWorkers: numWorkers,
		jobs:       make(chan T, bufferSize),
		processor:  processor,
		quit:       make(chan struct{}),
	}
}

func (p *Pool[T]) Start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool[T]) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.processor(ctx, job); err != nil {
				slog.Error("job failed", "pool", p.name, "worker", id, "error", err)
			}
		}
	}
}

// Submit queues a job, blocking while the queue is full.
func (p *Pool[T]) Submit(job T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	}
}

// TrySubmit queues a job without blocking.
func (p *Pool[T]) TrySubmit(job T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet picked up.
func (p *Pool[T]) Pending() int {
	return len(p.jobs)
}

// Stop closes the queue and waits for the workers to exit. Queued jobs are
// still processed unless the start context is already done.
func (p *Pool[T]) Stop() {
	// release submitters blocked on a full queue before taking the lock
	p.quitOnce.Do(func() { close(p.quit) })

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
