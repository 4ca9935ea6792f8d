package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler is a callback invoked when a matching event is published.
type Handler func(Event)

type subscription struct {
	types   map[EventType]struct{} // nil means "all events"
	handler Handler
}

// Bus is an in-process publish/subscribe event bus.
type Bus struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers []subscription
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler for the given event types.
// With no types the handler receives every event.
func (b *Bus) Subscribe(handler Handler, types ...EventType) {
	sub := subscription{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()
}

// Publish calls every matching subscriber synchronously in the caller's
// goroutine. A panicking handler is logged and does not affect the others.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.types != nil {
			if _, ok := sub.types[e.Type]; !ok {
				continue
			}
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event subscriber panicked", "type", e.Type, "panic", fmt.Sprint(r))
				}
			}()
			sub.handler(e)
		}()
	}
}
