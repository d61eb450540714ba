package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "github.com/dkeye/consult/internal/adapters/http"
	"github.com/dkeye/consult/internal/adapters/signal"
	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

const (
	clientToken     = "tok-client"
	consultantToken = "tok-consultant"
)

// newRelay starts a full relay over an httptest server and returns the
// signaling WebSocket URL.
func newRelay(t *testing.T, maxParticipants int) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	account := func(token, email, role string) app.Account {
		return app.Account{
			Token: token,
			Profile: domain.Profile{
				BaseProfile: domain.BaseProfile{Email: email, Role: domain.Role{Role: role}},
				Settings: domain.Settings{
					Streams: domain.StreamsSettings{Publisher: domain.StreamFlags{HasAudio: true, HasVideo: true}},
					Init:    domain.InitSettings{MaxParticipants: maxParticipants},
				},
			},
		}
	}
	dir := app.NewDirectory(domain.Tenant{Key: "acme"}, []app.Account{
		account(clientToken, "visitor@example.com", "ROLE_CLIENT"),
		account(consultantToken, "operator@example.com", "ROLE_CONSULTANT"),
	})
	reg := app.NewRegistry()
	ctrl := signal.NewSignalWSController(app.NewRoomManager(), reg, dir)

	cfg := &config.Server{Mode: "release", StaticPath: t.TempDir(), Secret: "test-secret"}
	srv := httptest.NewServer(router.SetupRouter(context.Background(), cfg, dir, reg, ctrl))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
}

func dial(t *testing.T, url, token string, opts core.JoinOptions) core.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := NewConnector(url, token, zerolog.Nop()).Connect(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Disconnect() })
	return sess
}

func waitConn(t *testing.T, ch <-chan core.Connection, what string) core.Connection {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return core.Connection{}
	}
}

func TestJoinCreatesFreshSession(t *testing.T) {
	url := newRelay(t, 2)

	sess := dial(t, url, clientToken, core.JoinOptions{
		Role:     core.RolePublisher,
		Metadata: []byte(`{"system":{"type":"client"}}`),
	})

	assert.NotEmpty(t, sess.ID())
	assert.NotEmpty(t, sess.LocalConnection().ID)
	assert.JSONEq(t, `{"system":{"type":"client"}}`, string(sess.LocalConnection().Data))
	assert.Empty(t, sess.RemoteConnections())
}

func TestSecondJoinerSeesFirst(t *testing.T) {
	url := newRelay(t, 2)

	a := dial(t, url, clientToken, core.JoinOptions{Role: core.RolePublisher})
	b := dial(t, url, consultantToken, core.JoinOptions{
		SessionID: a.ID(),
		Role:      core.RolePublisher,
	})

	assert.Equal(t, a.ID(), b.ID())
	require.Len(t, b.RemoteConnections(), 1)
	assert.Equal(t, a.LocalConnection().ID, b.RemoteConnections()[0].ID)

	// a learns about b through the membership broadcast
	assert.Eventually(t, func() bool {
		return len(a.RemoteConnections()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, b.LocalConnection().ID, a.RemoteConnections()[0].ID)
}

func TestSignalReachesOtherMembers(t *testing.T) {
	url := newRelay(t, 2)

	a := dial(t, url, clientToken, core.JoinOptions{Role: core.RolePublisher})
	b := dial(t, url, consultantToken, core.JoinOptions{SessionID: a.ID(), Role: core.RoleSubscriber})

	got := make(chan core.SignalEvent, 1)
	b.OnSignal("chat:text", func(ev core.SignalEvent) { got <- ev })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Signal(ctx, "chat:text", []byte(`{"text":"hi"}`), nil))

	select {
	case ev := <-got:
		assert.Equal(t, "chat:text", ev.Type)
		assert.Equal(t, a.LocalConnection().ID, ev.From)
		assert.JSONEq(t, `{"text":"hi"}`, string(ev.Data))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestTargetedSignalSkipsOthers(t *testing.T) {
	url := newRelay(t, 3)

	a := dial(t, url, clientToken, core.JoinOptions{Role: core.RolePublisher})
	b := dial(t, url, consultantToken, core.JoinOptions{SessionID: a.ID(), Role: core.RoleSubscriber})
	c := dial(t, url, consultantToken, core.JoinOptions{SessionID: a.ID(), Role: core.RoleSubscriber})

	gotB := make(chan core.SignalEvent, 1)
	gotC := make(chan core.SignalEvent, 1)
	b.OnSignal("chat:text", func(ev core.SignalEvent) { gotB <- ev })
	c.OnSignal("chat:text", func(ev core.SignalEvent) { gotC <- ev })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Signal(ctx, "chat:text", []byte(`{}`),
		[]domain.ConnectionID{b.LocalConnection().ID}))

	select {
	case <-gotB:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for targeted signal")
	}
	select {
	case <-gotC:
		t.Fatal("signal leaked to an unaddressed member")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPublishNotifiesMembers(t *testing.T) {
	url := newRelay(t, 2)

	a := dial(t, url, clientToken, core.JoinOptions{Role: core.RolePublisher})
	b := dial(t, url, consultantToken, core.JoinOptions{SessionID: a.ID(), Role: core.RoleSubscriber})

	created := make(chan core.Connection, 1)
	destroyed := make(chan core.Connection, 1)
	b.OnStreamCreated(func(c core.Connection) { created <- c })
	b.OnStreamDestroyed(func(c core.Connection) { destroyed <- c })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Publish(ctx, domain.StreamFlags{HasAudio: true}))
	assert.True(t, a.LocalConnection().Stream.HasAudio)

	conn := waitConn(t, created, "stream created")
	assert.Equal(t, a.LocalConnection().ID, conn.ID)
	assert.True(t, conn.Stream.HasAudio)
	assert.False(t, conn.Stream.HasVideo)

	require.NoError(t, a.Unpublish(ctx))
	conn = waitConn(t, destroyed, "stream destroyed")
	assert.Equal(t, a.LocalConnection().ID, conn.ID)
}

func TestJoinRefusedAtCapacity(t *testing.T) {
	url := newRelay(t, 1)

	a := dial(t, url, clientToken, core.JoinOptions{Role: core.RolePublisher})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewConnector(url, consultantToken, zerolog.Nop()).Connect(ctx, core.JoinOptions{
		SessionID: a.ID(),
		Role:      core.RolePublisher,
	})
	assert.ErrorIs(t, err, core.ErrSessionFull)
}

func TestDisconnectNotifiesPeers(t *testing.T) {
	url := newRelay(t, 2)

	a := dial(t, url, clientToken, core.JoinOptions{Role: core.RolePublisher})
	b := dial(t, url, consultantToken, core.JoinOptions{SessionID: a.ID(), Role: core.RoleSubscriber})

	left := make(chan core.Connection, 1)
	b.OnDisconnected(func(c core.Connection) { left <- c })

	aID := a.LocalConnection().ID
	require.NoError(t, a.Disconnect())

	conn := waitConn(t, left, "member left")
	assert.Equal(t, aID, conn.ID)
	assert.Eventually(t, func() bool {
		return len(b.RemoteConnections()) == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestUnknownTokenRefused(t *testing.T) {
	url := newRelay(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewConnector(url, "no-such-token", zerolog.Nop()).Connect(ctx, core.JoinOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
