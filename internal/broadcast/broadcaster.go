package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-guardian/internal/models"
)

type EventType string

const (
	EventIncident EventType = "incident"
	EventPrompt   EventType = "prompt"
	EventOutcome  EventType = "outcome"
)

// Event is a live update pushed to stream subscribers.
type Event struct {
	Type     EventType        `json:"type"`
	Incident *models.Incident `json:"incident,omitempty"`
	Message  string           `json:"message,omitempty"`
	At       time.Time        `json:"at"`
}

const subscriberBuffer = 100

type Broadcaster struct {
	subscribers map[uint64]chan Event
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan Event),
	}
}

func (b *Broadcaster) Subscribe() (uint64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Skip slow subscribers
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
