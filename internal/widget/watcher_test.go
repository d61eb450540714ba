package widget

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/consult/internal/bus"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/signals"
)

// fakeSignalSession only needs to deliver registered signal handlers;
// sends are swallowed.
type fakeSignalSession struct {
	handlers map[string][]func(core.SignalEvent)
}

func newFakeSignalSession() *fakeSignalSession {
	return &fakeSignalSession{handlers: make(map[string][]func(core.SignalEvent))}
}

func (s *fakeSignalSession) ID() domain.SessionID                 { return "acme" }
func (s *fakeSignalSession) LocalConnection() core.Connection     { return core.Connection{ID: "me"} }
func (s *fakeSignalSession) RemoteConnections() []core.Connection { return nil }

func (s *fakeSignalSession) Signal(context.Context, string, []byte, []domain.ConnectionID) error {
	return nil
}

func (s *fakeSignalSession) OnSignal(signalType string, h func(core.SignalEvent)) {
	s.handlers[signalType] = append(s.handlers[signalType], h)
}

func (s *fakeSignalSession) OnStreamCreated(func(core.Connection))             {}
func (s *fakeSignalSession) OnStreamDestroyed(func(core.Connection))           {}
func (s *fakeSignalSession) OnDisconnected(func(core.Connection))              {}
func (s *fakeSignalSession) Publish(context.Context, domain.StreamFlags) error { return nil }
func (s *fakeSignalSession) Unpublish(context.Context) error                   { return nil }
func (s *fakeSignalSession) Disconnect() error                                 { return nil }

func (s *fakeSignalSession) fire(signalType string, sp domain.SessionParticipant) {
	data, _ := json.Marshal(sp)
	for _, h := range s.handlers[signalType] {
		h(core.SignalEvent{Type: signalType, Data: data})
	}
}

type sessionConnector struct{ sess core.Session }

func (c sessionConnector) Connect(context.Context, core.JoinOptions) (core.Session, error) {
	return c.sess, nil
}

type noRoles struct{}

func (noRoles) ParticipantRoles(context.Context, []domain.ConnectionID) (map[domain.ConnectionID]string, error) {
	return map[domain.ConnectionID]string{}, nil
}

func callFrom(session domain.SessionID, email string) domain.SessionParticipant {
	return domain.SessionParticipant{
		Session: domain.SessionInfo{SessionID: session},
		Participant: domain.ParticipantMetadata{
			System: domain.SystemMetadata{
				Type: domain.ParticipantClient,
				Profile: domain.ParticipantInfo{
					Profile: domain.Profile{BaseProfile: domain.BaseProfile{Email: email}},
				},
			},
		},
	}
}

func newWatcherFixture(t *testing.T) (*Watcher, *fakeSignalSession, *[]domain.EventName) {
	t.Helper()
	sess := newFakeSignalSession()
	sig := signals.New(sessionConnector{sess: sess}, noRoles{}, domain.Tenant{Key: "acme"}, domain.ParticipantMetadata{})

	b := bus.New()
	var events []domain.EventName
	for _, ev := range []domain.EventName{domain.EventIncomingCall, domain.EventCalled, domain.EventLeft} {
		name := ev
		b.On(name, func(any) { events = append(events, name) })
	}

	w := NewWatcher(sig, b, zerolog.Nop())
	require.NoError(t, w.Start(context.Background()))
	return w, sess, &events
}

func TestWatcherTracksPendingCalls(t *testing.T) {
	w, sess, events := newWatcherFixture(t)

	sess.fire(signals.SignalCall, callFrom("s1", "visitor@example.com"))

	pending := w.PendingCalls()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.SessionID("s1"), pending[0].Session.SessionID)
	assert.Equal(t, []domain.EventName{domain.EventIncomingCall}, *events)
}

func TestWatcherDropsAnsweredCall(t *testing.T) {
	w, sess, events := newWatcherFixture(t)

	sess.fire(signals.SignalCall, callFrom("s1", "visitor@example.com"))
	sess.fire(signals.SignalAnswer, callFrom("s1", "operator@example.com"))

	assert.Empty(t, w.PendingCalls())
	assert.Equal(t, []domain.EventName{domain.EventIncomingCall, domain.EventCalled}, *events)
}

func TestWatcherDropsAbandonedCall(t *testing.T) {
	w, sess, events := newWatcherFixture(t)

	sess.fire(signals.SignalCall, callFrom("s1", "visitor@example.com"))
	sess.fire(signals.SignalLeave, callFrom("s1", "visitor@example.com"))

	assert.Empty(t, w.PendingCalls())
	assert.Equal(t, []domain.EventName{domain.EventIncomingCall, domain.EventLeft}, *events)
}

func TestWatcherDropsFullCall(t *testing.T) {
	w, sess, events := newWatcherFixture(t)

	sess.fire(signals.SignalCall, callFrom("s1", "visitor@example.com"))
	sess.fire(signals.SignalMaxParticipants, callFrom("s1", "operator@example.com"))

	assert.Empty(t, w.PendingCalls())
	assert.Equal(t, []domain.EventName{domain.EventIncomingCall, domain.EventLeft}, *events)
}

func TestWatcherIgnoresBlankSession(t *testing.T) {
	w, sess, events := newWatcherFixture(t)

	sess.fire(signals.SignalCall, domain.SessionParticipant{})

	assert.Empty(t, w.PendingCalls())
	assert.Empty(t, *events)
}
