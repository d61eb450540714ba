package signals

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

type sentSignal struct {
	Type string
	Data []byte
	To   []domain.ConnectionID
}

type fakeSession struct {
	id      domain.SessionID
	local   core.Connection
	remotes []core.Connection

	mu           sync.Mutex
	sent         []sentSignal
	handlers     map[string][]func(core.SignalEvent)
	signalErr    error
	disconnected bool
}

func newFakeSession(id domain.SessionID, remotes ...core.Connection) *fakeSession {
	return &fakeSession{
		id:       id,
		local:    core.Connection{ID: "local"},
		remotes:  remotes,
		handlers: make(map[string][]func(core.SignalEvent)),
	}
}

func (s *fakeSession) ID() domain.SessionID             { return s.id }
func (s *fakeSession) LocalConnection() core.Connection { return s.local }
func (s *fakeSession) RemoteConnections() []core.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Connection(nil), s.remotes...)
}

func (s *fakeSession) Signal(_ context.Context, signalType string, data []byte, to []domain.ConnectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signalErr != nil {
		return s.signalErr
	}
	s.sent = append(s.sent, sentSignal{Type: signalType, Data: data, To: to})
	return nil
}

func (s *fakeSession) OnSignal(signalType string, h func(core.SignalEvent)) {
	s.mu.Lock()
	s.handlers[signalType] = append(s.handlers[signalType], h)
	s.mu.Unlock()
}

func (s *fakeSession) fire(signalType string, data []byte) {
	s.mu.Lock()
	hs := make([]func(core.SignalEvent), len(s.handlers[signalType]))
	copy(hs, s.handlers[signalType])
	s.mu.Unlock()
	for _, h := range hs {
		h(core.SignalEvent{Type: signalType, Data: data})
	}
}

func (s *fakeSession) sentSignals() []sentSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentSignal(nil), s.sent...)
}

func (s *fakeSession) OnStreamCreated(func(core.Connection))   {}
func (s *fakeSession) OnStreamDestroyed(func(core.Connection)) {}
func (s *fakeSession) OnDisconnected(func(core.Connection))    {}

func (s *fakeSession) Publish(context.Context, domain.StreamFlags) error { return nil }
func (s *fakeSession) Unpublish(context.Context) error                   { return nil }

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	s.disconnected = true
	s.mu.Unlock()
	return nil
}

type fakeConnector struct {
	sess     core.Session
	err      error
	delay    time.Duration
	connects atomic.Int32
}

func (c *fakeConnector) Connect(context.Context, core.JoinOptions) (core.Session, error) {
	c.connects.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.sess, c.err
}

type fakeRoles struct {
	mu    sync.Mutex
	roles map[domain.ConnectionID]string
	calls [][]domain.ConnectionID
	err   error
}

func (r *fakeRoles) ParticipantRoles(_ context.Context, ids []domain.ConnectionID) (map[domain.ConnectionID]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]domain.ConnectionID(nil), ids...))
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[domain.ConnectionID]string)
	for _, id := range ids {
		if role, ok := r.roles[id]; ok {
			out[id] = role
		}
	}
	return out, nil
}

func (r *fakeRoles) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

var testTenant = domain.Tenant{Key: "acme", Name: "Acme"}

func testMetadata() domain.ParticipantMetadata {
	return domain.ParticipantMetadata{
		System: domain.SystemMetadata{
			Type: domain.ParticipantClient,
			Profile: domain.ParticipantInfo{
				Profile: domain.Profile{
					BaseProfile: domain.BaseProfile{Email: "visitor@example.com"},
				},
			},
			ClientID: "client-1",
		},
	}
}

func TestSignalDroppedWithoutConsultants(t *testing.T) {
	sess := newFakeSession("acme",
		core.Connection{ID: "c1"},
		core.Connection{ID: "c2"},
	)
	roles := &fakeRoles{roles: map[domain.ConnectionID]string{
		"c1": "ROLE_CLIENT",
		"c2": "ROLE_CLIENT",
	}}
	s := New(&fakeConnector{sess: sess}, roles, testTenant, testMetadata())

	err := s.Call(context.Background(), domain.SessionInfo{SessionID: "call-1"})
	require.NoError(t, err)
	assert.Empty(t, sess.sentSignals())
}

func TestSignalReachesConsultantsOnly(t *testing.T) {
	sess := newFakeSession("acme",
		core.Connection{ID: "c1"},
		core.Connection{ID: "op1"},
		core.Connection{ID: "op2"},
	)
	roles := &fakeRoles{roles: map[domain.ConnectionID]string{
		"c1":  "ROLE_CLIENT",
		"op1": "ROLE_CONSULTANT",
		"op2": "ROLE_CONSULTANT_SENIOR",
	}}
	s := New(&fakeConnector{sess: sess}, roles, testTenant, testMetadata())

	info := domain.SessionInfo{
		SessionID:  "call-1",
		Connection: domain.SessionConnection{Stream: domain.StreamFlags{HasAudio: true}},
	}
	require.NoError(t, s.Call(context.Background(), info))

	sent := sess.sentSignals()
	require.Len(t, sent, 1)
	assert.Equal(t, SignalCall, sent[0].Type)
	// the derived "ROLE_CONSULTANT_SENIOR" role is not a signal recipient
	assert.Equal(t, []domain.ConnectionID{"op1"}, sent[0].To)

	var sp domain.SessionParticipant
	require.NoError(t, json.Unmarshal(sent[0].Data, &sp))
	assert.Equal(t, info, sp.Session)
	assert.Equal(t, "client-1", sp.Participant.System.ClientID)
}

func TestRoleCacheAvoidsRepeatLookups(t *testing.T) {
	sess := newFakeSession("acme",
		core.Connection{ID: "op1"},
		core.Connection{ID: "ghost"},
	)
	roles := &fakeRoles{roles: map[domain.ConnectionID]string{
		"op1": "ROLE_CONSULTANT",
	}}
	s := New(&fakeConnector{sess: sess}, roles, testTenant, testMetadata())

	require.NoError(t, s.Call(context.Background(), domain.SessionInfo{SessionID: "call-1"}))
	require.NoError(t, s.Answer(context.Background(), domain.SessionInfo{SessionID: "call-1"}))

	require.Equal(t, 2, roles.callCount())
	// resolved id cached, unresolved one asked again
	assert.Equal(t, []domain.ConnectionID{"op1", "ghost"}, roles.calls[0])
	assert.Equal(t, []domain.ConnectionID{"ghost"}, roles.calls[1])
}

func TestRoleLookupFailurePropagates(t *testing.T) {
	sess := newFakeSession("acme", core.Connection{ID: "op1"})
	roles := &fakeRoles{err: errors.New("backend down")}
	s := New(&fakeConnector{sess: sess}, roles, testTenant, testMetadata())

	err := s.Call(context.Background(), domain.SessionInfo{SessionID: "call-1"})
	require.Error(t, err)
	assert.Empty(t, sess.sentSignals())
}

func TestMalformedPayloadYieldsZeroValue(t *testing.T) {
	sess := newFakeSession("acme")
	roles := &fakeRoles{}
	s := New(&fakeConnector{sess: sess}, roles, testTenant, testMetadata())

	got := make(chan domain.SessionParticipant, 1)
	require.NoError(t, s.OnCall(context.Background(), func(sp domain.SessionParticipant) {
		got <- sp
	}))

	sess.fire(SignalCall, []byte("{not json"))
	select {
	case sp := <-got:
		assert.Equal(t, domain.SessionParticipant{}, sp)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestOnFirstMaxParticipantsFiresOnce(t *testing.T) {
	sess := newFakeSession("acme")
	s := New(&fakeConnector{sess: sess}, &fakeRoles{}, testTenant, testMetadata())

	var fired atomic.Int32
	require.NoError(t, s.OnFirstMaxParticipants(context.Background(), func(domain.SessionParticipant) {
		fired.Add(1)
	}))

	payload, _ := json.Marshal(domain.SessionParticipant{})
	sess.fire(SignalMaxParticipants, payload)
	sess.fire(SignalMaxParticipants, payload)
	sess.fire(SignalMaxParticipants, payload)

	assert.Equal(t, int32(1), fired.Load())
}

func TestSessionConnectedOnce(t *testing.T) {
	sess := newFakeSession("acme")
	conn := &fakeConnector{sess: sess, delay: 20 * time.Millisecond}
	s := New(conn, &fakeRoles{}, testTenant, testMetadata())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Call(context.Background(), domain.SessionInfo{SessionID: "call-1"})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), conn.connects.Load())
}

func TestConnectFailureMemoized(t *testing.T) {
	conn := &fakeConnector{err: errors.New("relay unreachable")}
	s := New(conn, &fakeRoles{}, testTenant, testMetadata())

	err1 := s.Call(context.Background(), domain.SessionInfo{SessionID: "call-1"})
	err2 := s.Call(context.Background(), domain.SessionInfo{SessionID: "call-1"})
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, int32(1), conn.connects.Load())
}

func TestDisconnectClosesEstablishedSession(t *testing.T) {
	sess := newFakeSession("acme")
	s := New(&fakeConnector{sess: sess}, &fakeRoles{}, testTenant, testMetadata())

	require.NoError(t, s.Disconnect()) // never connected, nothing to do
	require.NoError(t, s.Call(context.Background(), domain.SessionInfo{SessionID: "call-1"}))
	require.NoError(t, s.Disconnect())

	sess.mu.Lock()
	defer sess.mu.Unlock()
	assert.True(t, sess.disconnected)
}
