package sequencer

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
)

// Inbox is the single queue of user replies. Any number of producers may
// Push; only the sequencer reads.
type Inbox struct {
	ch      chan string
	dropped atomic.Uint64
}

func NewInbox(size int) *Inbox {
	if size < 1 {
		size = 1
	}
	return &Inbox{
		ch: make(chan string, size),
	}
}

// Push enqueues a reply without blocking. Blank replies are ignored; false
// is returned when the reply was dropped because the queue is full.
func (in *Inbox) Push(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	select {
	case in.ch <- text:
		return true
	default:
		in.dropped.Add(1)
		return false
	}
}

// Drain discards replies queued before the current cycle started.
func (in *Inbox) Drain() int {
	n := 0
	for {
		select {
		case <-in.ch:
			n++
		default:
			return n
		}
	}
}

// Wait blocks until a reply arrives, the timeout elapses (ok is false) or
// ctx is done (err is ctx.Err()).
func (in *Inbox) Wait(ctx context.Context, timeout time.Duration) (reply string, ok bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-timer.C:
		return "", false, nil
	case reply = <-in.ch:
		return reply, true, nil
	}
}

func (in *Inbox) Len() int {
	return len(in.ch)
}

func (in *Inbox) Dropped() uint64 {
	return in.dropped.Load()
}
