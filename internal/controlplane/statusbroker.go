package controlplane

import (
	"sync"

	"github.com/rik-org/riklet/internal/model"
)

// subscriberBufferSize is the channel buffer for each status subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// StatusBroker fans out status transitions to per-workload SSE subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a workload reaches a terminal status) receive a closed
// channel instead of blocking forever.
type StatusBroker struct {
	mu     sync.Mutex
	topics map[string]*statusTopic
}

type statusTopic struct {
	subs   map[int]chan model.StatusEvent
	nextID int
	closed bool
}

// NewStatusBroker creates a new status broker.
func NewStatusBroker() *StatusBroker {
	return &StatusBroker{topics: make(map[string]*statusTopic)}
}

// Subscribe returns a channel that receives status events for the named
// workload and an unsubscribe function. If the workload already reached a
// terminal status (Close was called), the returned channel is immediately
// closed.
func (b *StatusBroker) Subscribe(name string) (<-chan model.StatusEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		t = &statusTopic{subs: make(map[int]chan model.StatusEvent)}
		b.topics[name] = t
	}

	ch := make(chan model.StatusEvent, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends a status event to all subscribers of the named workload,
// and closes the topic if the event's status is terminal.
func (b *StatusBroker) Publish(name string, ev model.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		t = &statusTopic{subs: make(map[int]chan model.StatusEvent)}
		b.topics[name] = t
	}
	if t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop the event for slow subscribers rather than block publish.
		}
	}

	if ev.Status == model.StatusTerminated || ev.Status == model.StatusFailed {
		t.closed = true
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
	}
}
