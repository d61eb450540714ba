// Package transport decouples what channel moves chat messages from who
// produces and consumes them. Concrete channels (session signals, peer
// data channels) hide behind core.Transport, composed with decorators so
// chat logic stays channel-agnostic.
package transport

import (
	"context"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

// Repeater adds own sent messages receiving: every Send is also delivered
// to all locally registered handlers, tagged as publisher-originated, so
// the sender observes its own messages without a network round trip.
type Repeater[M any] struct {
	sess core.Session

	mu       sync.RWMutex
	handlers []core.HandleRecvMessage[M]
}

func NewRepeater[M any](sess core.Session) *Repeater[M] {
	return &Repeater[M]{sess: sess}
}

func (r *Repeater[M]) Send(_ context.Context, message M) error {
	msg := core.RecvMessage[M]{
		Custom: message,
		System: core.RecvSystem{
			From:   r.sess.LocalConnection().ID,
			Stream: domain.StreamPublisher,
		},
	}
	r.mu.RLock()
	handlers := make([]core.HandleRecvMessage[M], len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (r *Repeater[M]) OnReceived(h core.HandleRecvMessage[M]) {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// Composite combines several transports to behave as the only one: Send
// dispatches to all of them concurrently and fails if any fails (every
// child is still attempted); OnReceived registers on every child.
type Composite[M any] struct {
	transports []core.Transport[M]
}

func NewComposite[M any](transports ...core.Transport[M]) *Composite[M] {
	return &Composite[M]{transports: transports}
}

func (c *Composite[M]) Send(ctx context.Context, message M) error {
	var wg sync.WaitGroup
	errs := make([]error, len(c.transports))
	for i, t := range c.transports {
		wg.Add(1)
		go func(i int, t core.Transport[M]) {
			defer wg.Done()
			errs[i] = t.Send(ctx, message)
		}(i, t)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Composite[M]) OnReceived(h core.HandleRecvMessage[M]) {
	for _, t := range c.transports {
		t.OnReceived(h)
	}
}

var _ core.Transport[struct{}] = (*Repeater[struct{}])(nil)
var _ core.Transport[struct{}] = (*Composite[struct{}])(nil)
