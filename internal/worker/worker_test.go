package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_StartStop(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}

	pool := NewPool("test", 2, 10, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		if err := pool.Submit(i); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	time.Sleep(50 * time.Millisecond)

	cancel()
	pool.Stop()

	if processed.Load() != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processed.Load())
	}
}

func TestPool_SingleWorkerKeepsOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)
	processor := func(ctx context.Context, job int) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		order = append(order, job)
		mu.Unlock()
		return nil
	}

	pool := NewPool("ordered", 1, 20, processor)
	pool.Start(context.Background())

	for i := 0; i < 10; i++ {
		pool.Submit(i)
	}
	// Stop drains the queue when the context is still live
	pool.Stop()

	if len(order) != 10 {
		t.Fatalf("expected 10 jobs, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("job %d processed out of order: %v", i, order)
		}
	}
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}

	pool := NewPool("concurrent", 4, 100, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			pool.Submit(n)
		}(i)
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)

	cancel()
	pool.Stop()

	if processed.Load() != 100 {
		t.Errorf("expected 100 jobs processed, got %d", processed.Load())
	}
}

func TestPool_ProcessorErrorDoesNotStopWorker(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		processed.Add(1)
		if job%2 == 0 {
			return errors.New("boom")
		}
		return nil
	}

	pool := NewPool("errors", 1, 10, processor)
	pool.Start(context.Background())
	for i := 0; i < 6; i++ {
		pool.Submit(i)
	}
	pool.Stop()

	if processed.Load() != 6 {
		t.Errorf("expected 6 jobs processed, got %d", processed.Load())
	}
}

func TestPool_TrySubmitFull(t *testing.T) {
	block := make(chan struct{})
	processor := func(ctx context.Context, job int) error {
		<-block
		return nil
	}

	pool := NewPool("full", 1, 1, processor)
	pool.Start(context.Background())

	// first job occupies the worker, second fills the buffer
	pool.Submit(1)
	deadline := time.Now().Add(time.Second)
	for pool.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := pool.TrySubmit(2); err != nil {
		t.Fatalf("expected buffered submit to succeed, got %v", err)
	}
	if err := pool.TrySubmit(3); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(block)
	pool.Stop()
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool("closed", 1, 1, func(ctx context.Context, job int) error { return nil })
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	if err := pool.Submit(1); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed from Submit, got %v", err)
	}
	if err := pool.TrySubmit(1); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed from TrySubmit, got %v", err)
	}
}

func TestPool_GracefulShutdown(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		time.Sleep(10 * time.Millisecond)
		processed.Add(1)
		return nil
	}

	pool := NewPool("shutdown", 2, 50, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 20; i++ {
		pool.Submit(i)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	t.Logf("processed %d jobs before shutdown", processed.Load())
}
