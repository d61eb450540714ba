package session

import (
	"context"
	"encoding/json"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/wire"
)

func (s *wsSession) Signal(ctx context.Context, signalType string, data []byte, to []domain.ConnectionID) error {
	frame := wire.Signal{
		Type:       wire.TypeSignal,
		Ref:        newRef(),
		SignalType: signalType,
		Data:       json.RawMessage(data),
		To:         to,
	}
	return s.request(ctx, frame.Ref, frame)
}

func (s *wsSession) Publish(ctx context.Context, flags domain.StreamFlags) error {
	frame := wire.Publish{Type: wire.TypePublish, Ref: newRef(), Stream: flags}
	if err := s.request(ctx, frame.Ref, frame); err != nil {
		return err
	}
	s.mu.Lock()
	s.local.Stream = flags
	s.mu.Unlock()
	return nil
}

func (s *wsSession) Unpublish(ctx context.Context) error {
	frame := wire.Publish{Type: wire.TypeUnpublish, Ref: newRef()}
	if err := s.request(ctx, frame.Ref, frame); err != nil {
		return err
	}
	s.mu.Lock()
	s.local.Stream = domain.StreamFlags{}
	s.mu.Unlock()
	return nil
}

// request sends one frame and waits for its ack or error by ref.
func (s *wsSession) request(ctx context.Context, ref string, frame any) error {
	if s.isClosed() {
		return core.ErrDisconnected
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	s.pendingMu.Lock()
	s.pending[ref] = done
	s.pendingMu.Unlock()

	select {
	case s.send <- b:
	case <-ctx.Done():
		s.abandon(ref)
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.abandon(ref)
		return ctx.Err()
	}
}

func (s *wsSession) abandon(ref string) {
	s.pendingMu.Lock()
	delete(s.pending, ref)
	s.pendingMu.Unlock()
}
