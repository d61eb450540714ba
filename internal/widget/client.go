package widget

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dkeye/consult/internal/api"
	"github.com/dkeye/consult/internal/bus"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/transport"
)

// ClientWidget is the visitor-side facade: place a call, chat, hang up.
type ClientWidget struct {
	*Widget
	api *api.Client
}

func NewClientWidget(client *api.Client, b *bus.Bus, echo transport.EchoPolicy, logger zerolog.Logger) *ClientWidget {
	w := &ClientWidget{
		Widget: newWidget(b, echo, logger),
		api:    client,
	}
	client.OnParticipantLeft(func(meta domain.ParticipantMetadata) {
		w.Bus.Emit(domain.EventParticipantLeft, meta)
	}, domain.ParticipantConsultant)
	return w
}

func (w *ClientWidget) API() *api.Client { return w.api }

// Init subscribes to the signaling events a client cares about and
// announces readiness to the host.
func (w *ClientWidget) Init(ctx context.Context) error {
	if err := w.api.Signals.OnAnswered(ctx, func(sp domain.SessionParticipant) {
		w.Bus.Emit(domain.EventCalled, sp)
	}); err != nil {
		return err
	}
	if err := w.api.Signals.OnLeft(ctx, func(sp domain.SessionParticipant) {
		w.Bus.Emit(domain.EventLeft, sp)
	}); err != nil {
		return err
	}
	if err := w.api.Signals.OnFirstMaxParticipants(ctx, func(sp domain.SessionParticipant) {
		w.log.Warn().Str("session", string(sp.Session.SessionID)).Msg("call refused, session full")
		w.Bus.Emit(domain.EventLeft, sp)
	}); err != nil {
		return err
	}
	w.Bus.Emit(domain.EventAfterInit, nil)
	return nil
}

// Call opens a new call and announces it to consultants.
func (w *ClientWidget) Call(ctx context.Context) error {
	return w.call(ctx, w.api.Call)
}

// CallAudio opens an audio-only call.
func (w *ClientWidget) CallAudio(ctx context.Context) error {
	return w.call(ctx, w.api.CallAudio)
}

func (w *ClientWidget) call(ctx context.Context, place func(context.Context) (core.Session, error)) error {
	w.Bus.Emit(domain.EventJoiningCall, nil)
	w.Bus.Emit(domain.EventCalling, nil)
	sess, err := place(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("call failed")
		return err
	}
	w.Bus.Emit(domain.EventJoinedCall, sess.ID())
	w.wireCall(w.api.API, sess)
	return nil
}

func (w *ClientWidget) Leave(ctx context.Context) error {
	return w.leave(ctx, w.api.API)
}

func (w *ClientWidget) SendMessage(ctx context.Context, text string) error {
	return w.sendText(ctx, w.api.API, text)
}

func (w *ClientWidget) SendFile(ctx context.Context, msg domain.FileMessage) error {
	return w.sendFile(ctx, w.api.API, msg)
}

// Shutdown leaves any live call and closes the signaling connection.
func (w *ClientWidget) Shutdown(ctx context.Context) error {
	return w.api.Disconnect(ctx)
}
