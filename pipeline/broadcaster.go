// ABOUTME: In-process publish/subscribe bus fanning lifecycle events out to all observers.
// ABOUTME: Publish never blocks: per-subscriber queues are bounded and drop the oldest event on overflow.
package pipeline

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberQueueSize bounds each subscriber's outbound queue. A stalled SSE
// client loses its oldest events rather than stalling the worker.
const subscriberQueueSize = 512

// Subscriber is one observer's outbound event queue. It is owned by a single
// observer connection and must not be shared.
type Subscriber struct {
	id string
	ch chan Event
}

// Events returns the receive side of the subscriber's queue. The channel is
// closed on unsubscribe.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Broadcaster delivers every published event to every active subscriber.
// All methods are safe for concurrent use.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	logger *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[string]*Subscriber),
		logger: logger,
	}
}

// Subscribe registers a new observer. The subscriber is eligible for all
// events published after this call; history is not replayed.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, subscriberQueueSize),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its queue. Idempotent.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	// Closing under the write lock means no Publish (which holds the read
	// lock while sending) can race a send against this close.
	close(sub.ch)
}

// Publish enqueues the event on every active subscriber. When a queue is
// full the oldest queued event is dropped to make room, so a slow observer
// can never block the worker.
func (b *Broadcaster) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
			continue
		default:
		}

		// Queue full: drop the oldest and retry once. This receive competes
		// with the subscriber's own receive, so a concurrently draining
		// observer can lose one deliverable event here. Accepted: the policy
		// only promises best-effort delivery once the queue has filled.
		select {
		case <-sub.ch:
			eventsDropped.Inc()
		default:
		}
		select {
		case sub.ch <- evt:
		default:
			eventsDropped.Inc()
			b.logger.Warn("dropped event for stalled subscriber",
				"subscriber", sub.id, "event", string(evt.Type))
		}
	}
	eventsPublished.WithLabelValues(string(evt.Type)).Inc()
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
