package events

import (
	"context"
	"sync"

	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

// Bus fans events out to in-process subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
	logger *logging.Logger
}

type subscription struct {
	ch    chan Envelope
	types map[string]struct{}
}

func (s *subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int, logger *logging.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{
		subs:   make(map[uint64]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for the given event types (all when empty).
// The returned cancel func unregisters and closes the channel.
func (b *Bus) Subscribe(types ...string) (<-chan Envelope, func()) {
	sub := &subscription{ch: make(chan Envelope, b.buffer)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers env to every interested subscriber.
func (b *Bus) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subs {
		if !sub.wants(env.Type) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			b.logger.Warn("event dropped for slow subscriber", "subscriber", id, "event_id", env.ID, "type", env.Type)
		}
	}
	return nil
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
