// Package widget is the host-facing facade: it drives the call API and
// republishes everything that happens as bus events the host subscribes
// to by name.
package widget

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkeye/consult/internal/api"
	"github.com/dkeye/consult/internal/bus"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/transport"
)

// Widget is the event plumbing shared by both participant facades.
type Widget struct {
	Bus *bus.Bus

	echo transport.EchoPolicy
	log  zerolog.Logger
}

func newWidget(b *bus.Bus, echo transport.EchoPolicy, logger zerolog.Logger) *Widget {
	return &Widget{
		Bus:  b,
		echo: echo,
		log:  logger.With().Str("module", "widget").Logger(),
	}
}

// wireSession republishes session membership changes as bus events.
func (w *Widget) wireSession(sess core.Session) {
	for _, rc := range sess.RemoteConnections() {
		w.Bus.Emit(domain.EventParticipantJoined, domain.DecodeParticipantMetadata(rc.Data))
	}
	sess.OnStreamCreated(func(conn core.Connection) {
		w.Bus.Emit(domain.EventParticipantJoined, domain.DecodeParticipantMetadata(conn.Data))
		w.Bus.Emit(domain.EventVideoElementCreated, conn.ID)
	})
	sess.OnStreamDestroyed(func(conn core.Connection) {
		w.Bus.Emit(domain.EventVideoElementDestroyed, conn.ID)
	})
}

// wireChat republishes chat traffic. Own sends always produce a sent
// event; whether they also appear in the received stream follows the
// echo policy.
func (w *Widget) wireChat(chat *transport.ChatTransports) {
	emitText := transport.WithEchoPolicy(w.echo, func(m core.RecvMessage[domain.TextMessage]) {
		w.Bus.Emit(domain.EventMessageReceived, m)
	})
	chat.Text.OnReceived(func(m core.RecvMessage[domain.TextMessage]) {
		if m.System.Stream == domain.StreamPublisher {
			w.Bus.Emit(domain.EventMessageSent, m)
		}
		emitText(m)
	})

	emitFile := transport.WithEchoPolicy(w.echo, func(m core.RecvMessage[domain.FileMessage]) {
		w.Bus.Emit(domain.EventFileReceived, m)
	})
	chat.File.OnReceived(func(m core.RecvMessage[domain.FileMessage]) {
		if m.System.Stream == domain.StreamPublisher {
			w.Bus.Emit(domain.EventFileSent, m)
		}
		emitFile(m)
	})
}

func (w *Widget) wireCall(a *api.API, sess core.Session) {
	w.wireSession(sess)
	if chat, ok := a.Chat(); ok {
		w.wireChat(chat)
	}
}

func (w *Widget) leave(ctx context.Context, a *api.API) error {
	w.Bus.Emit(domain.EventLeavingCall, nil)
	err := a.Leave(ctx)
	w.Bus.Emit(domain.EventLeftCall, nil)
	return err
}

func (w *Widget) sendText(ctx context.Context, a *api.API, text string) error {
	chat, ok := a.Chat()
	if !ok {
		return api.ErrNotInCall
	}
	return chat.Text.Send(ctx, domain.TextMessage{Text: text, Time: time.Now()})
}

func (w *Widget) sendFile(ctx context.Context, a *api.API, msg domain.FileMessage) error {
	chat, ok := a.Chat()
	if !ok {
		return api.ErrNotInCall
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	return chat.File.Send(ctx, msg)
}
