// Package bus is the widget's publish/subscribe hub: protocol events in,
// stable application-level events out.
package bus

import (
	"sync"

	"github.com/dkeye/consult/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handle identifies one registered handler for later removal.
type Handle string

// Handler receives the event payload. Payload types per event are listed
// in domain's event constants; handlers type-assert what they expect.
type Handler func(payload any)

type entry struct {
	id Handle
	fn Handler
}

// Bus is a per-widget-instance registry of event handlers. Not a process
// singleton: each widget owns its own.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventName][]entry
}

func New() *Bus {
	return &Bus{handlers: make(map[domain.EventName][]entry)}
}

// On registers a handler for one event and returns its removal handle.
// Handlers run in registration order.
func (b *Bus) On(event domain.EventName, fn Handler) Handle {
	id := Handle(uuid.NewString())
	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], entry{id: id, fn: fn})
	b.mu.Unlock()
	return id
}

// Off removes the handler with the given handle from every event bucket.
func (b *Bus) Off(id Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for event, entries := range b.handlers {
		for i, e := range entries {
			if e.id == id {
				b.handlers[event] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
	}
}

// Emit invokes every handler registered for the event, in order. A
// panicking handler is logged and skipped; it never breaks delivery to
// the remaining handlers or the emitting code path.
func (b *Bus) Emit(event domain.EventName, payload any) {
	b.mu.RLock()
	entries := make([]entry, len(b.handlers[event]))
	copy(entries, b.handlers[event])
	b.mu.RUnlock()

	for _, e := range entries {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("module", "bus").Str("event", string(event)).Any("panic", r).Msg("event handler panicked")
				}
			}()
			e.fn(payload)
		}()
	}
}
