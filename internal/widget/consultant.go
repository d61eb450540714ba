package widget

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dkeye/consult/internal/api"
	"github.com/dkeye/consult/internal/bus"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/transport"
)

// ConsultantWidget is the operator-side facade: watch incoming calls,
// answer one, chat, hang up.
type ConsultantWidget struct {
	*Widget
	api     *api.Consultant
	watcher *Watcher
}

func NewConsultantWidget(consultant *api.Consultant, b *bus.Bus, echo transport.EchoPolicy, logger zerolog.Logger) *ConsultantWidget {
	w := &ConsultantWidget{
		Widget:  newWidget(b, echo, logger),
		api:     consultant,
		watcher: NewWatcher(consultant.Signals, b, logger),
	}
	consultant.OnParticipantLeft(func(meta domain.ParticipantMetadata) {
		w.Bus.Emit(domain.EventParticipantLeft, meta)
	}, domain.ParticipantClient)
	return w
}

func (w *ConsultantWidget) API() *api.Consultant { return w.api }

// Init starts the incoming-call watch and announces readiness.
func (w *ConsultantWidget) Init(ctx context.Context) error {
	if err := w.watcher.Start(ctx); err != nil {
		return err
	}
	w.Bus.Emit(domain.EventAfterInit, nil)
	return nil
}

// PendingCalls lists calls not yet answered by anyone.
func (w *ConsultantWidget) PendingCalls() []domain.SessionParticipant {
	return w.watcher.PendingCalls()
}

// Answer joins the named call session.
func (w *ConsultantWidget) Answer(ctx context.Context, sessionID domain.SessionID) error {
	w.Bus.Emit(domain.EventJoiningCall, nil)
	sess, err := w.api.Answer(ctx, sessionID)
	if err != nil {
		w.log.Error().Err(err).Str("session", string(sessionID)).Msg("answer failed")
		return err
	}
	w.watcher.drop(sessionID)
	w.Bus.Emit(domain.EventJoinedCall, sess.ID())
	w.wireCall(w.api.API, sess)
	return nil
}

func (w *ConsultantWidget) Leave(ctx context.Context) error {
	return w.leave(ctx, w.api.API)
}

func (w *ConsultantWidget) SendMessage(ctx context.Context, text string) error {
	return w.sendText(ctx, w.api.API, text)
}

func (w *ConsultantWidget) SendFile(ctx context.Context, msg domain.FileMessage) error {
	return w.sendFile(ctx, w.api.API, msg)
}

// Shutdown leaves any live call and closes the signaling connection.
func (w *ConsultantWidget) Shutdown(ctx context.Context) error {
	return w.api.Disconnect(ctx)
}
