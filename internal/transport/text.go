package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// SignalChatType is the session signal kind that carries chat text.
const SignalChatType = "chat:text"

// messageLogger is the slice of the backend the text transport needs.
type messageLogger interface {
	LogMessage(ctx context.Context, rec domain.MessageRecord) error
}

// SignalTransport moves text messages over session signals, broadcast to
// every participant of the media session. Each delivered message is also
// recorded on the backend; recording failures are logged, not propagated,
// since the message already reached its recipients.
type SignalTransport struct {
	sess   core.Session
	logger messageLogger

	mu       sync.RWMutex
	handlers []core.HandleRecvMessage[domain.TextMessage]
}

func NewSignalTransport(sess core.Session, logger messageLogger) *SignalTransport {
	t := &SignalTransport{sess: sess, logger: logger}
	sess.OnSignal(SignalChatType, t.receive)
	return t
}

func (t *SignalTransport) Send(ctx context.Context, message domain.TextMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if err := t.sess.Signal(ctx, SignalChatType, data, nil); err != nil {
		return err
	}
	if t.logger != nil {
		rec := domain.MessageRecord{
			Type:       domain.MessageText,
			Text:       message.Text,
			Time:       message.Time,
			Connection: t.sess.LocalConnection().ID,
		}
		if err := t.logger.LogMessage(ctx, rec); err != nil {
			log.Warn().Err(err).Str("module", "transport").Msg("text message not recorded on backend")
		}
	}
	return nil
}

func (t *SignalTransport) OnReceived(h core.HandleRecvMessage[domain.TextMessage]) {
	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()
}

func (t *SignalTransport) receive(ev core.SignalEvent) {
	var payload domain.TextMessage
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		log.Warn().Err(err).Str("module", "transport").Str("from", string(ev.From)).Msg("malformed chat payload dropped")
		return
	}
	msg := core.RecvMessage[domain.TextMessage]{
		Custom: payload,
		System: core.RecvSystem{From: ev.From, Stream: domain.StreamSubscriber},
	}
	t.mu.RLock()
	handlers := make([]core.HandleRecvMessage[domain.TextMessage], len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
}

var _ core.Transport[domain.TextMessage] = (*SignalTransport)(nil)
