// Package session is the participant-side implementation of the session
// boundary: it dials the relay over WebSocket, performs the join
// handshake and keeps the remote membership view current.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/wire"
)

// RTCFactory builds one peer data connection. Nil disables data channel
// negotiation for sessions that only carry signals.
type RTCFactory func() (core.DataConnection, error)

// Connector dials relay sessions.
type Connector struct {
	URL        string
	Token      string
	PingPeriod time.Duration
	RTC        RTCFactory
	Logger     zerolog.Logger
}

func NewConnector(url, token string, logger zerolog.Logger) *Connector {
	return &Connector{
		URL:        url,
		Token:      token,
		PingPeriod: 54 * time.Second,
		Logger:     logger,
	}
}

// WithRTC enables peer data channel negotiation on sessions dialed after
// the call.
func (c *Connector) WithRTC(factory RTCFactory) *Connector {
	c.RTC = factory
	return c
}

func (c *Connector) Connect(ctx context.Context, opts core.JoinOptions) (core.Session, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.Token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, c.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial relay: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	s := &wsSession{
		conn:       ws,
		send:       make(chan []byte, 32),
		writerDone: make(chan struct{}),
		pending:    make(map[string]chan error),
		remotes:    make(map[domain.ConnectionID]core.Connection),
		signals:    make(map[string][]func(core.SignalEvent)),
		peers:      make(map[domain.ConnectionID]core.DataConnection),
		candBuf:    make(map[domain.ConnectionID][]wire.RTC),
		rtc:        c.RTC,
		log:        c.Logger.With().Str("module", "adapters.session").Logger(),
	}

	if err := s.join(ctx, opts); err != nil {
		_ = ws.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.writePump(runCtx, c.PingPeriod)
	go s.readPump(runCtx)
	s.negotiatePeers(runCtx)

	return s, nil
}

var _ core.Connector = (*Connector)(nil)

type wsSession struct {
	conn       *websocket.Conn
	send       chan []byte
	cancel     context.CancelFunc
	writerDone chan struct{}
	rtc        RTCFactory
	log        zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	id      domain.SessionID
	local   core.Connection
	remotes map[domain.ConnectionID]core.Connection
	order   []domain.ConnectionID

	pendingMu sync.Mutex
	pending   map[string]chan error

	handlersMu      sync.RWMutex
	signals         map[string][]func(core.SignalEvent)
	streamCreated   []func(core.Connection)
	streamDestroyed []func(core.Connection)
	disconnected    []func(core.Connection)
	dataConn        []func(domain.ConnectionID, core.DataConnection)

	peersMu sync.Mutex
	peers   map[domain.ConnectionID]core.DataConnection
	candBuf map[domain.ConnectionID][]wire.RTC
}

var (
	_ core.Session             = (*wsSession)(nil)
	_ core.DataChannelProvider = (*wsSession)(nil)
)

// join runs the handshake synchronously: the relay sends nothing to a
// connection before answering its join frame.
func (s *wsSession) join(ctx context.Context, opts core.JoinOptions) error {
	req := wire.Join{
		Type:     wire.TypeJoin,
		Ref:      newRef(),
		Session:  opts.SessionID,
		Role:     string(opts.Role),
		Metadata: json.RawMessage(opts.Metadata),
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
		_ = s.conn.SetReadDeadline(deadline)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("join write: %w", err)
	}

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("join read: %w", err)
	}
	_ = s.conn.SetWriteDeadline(time.Time{})
	_ = s.conn.SetReadDeadline(time.Time{})

	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("join response: %w", err)
	}
	if env.Type == wire.TypeError {
		var e wire.Error
		_ = json.Unmarshal(data, &e)
		return codeToErr(e)
	}
	var joined wire.Joined
	if err := json.Unmarshal(data, &joined); err != nil || joined.Type != wire.TypeJoined {
		return fmt.Errorf("unexpected join response %q", env.Type)
	}

	s.mu.Lock()
	s.id = joined.Session
	s.local = connFromWire(joined.Connection)
	for _, m := range joined.Members {
		s.remotes[m.ID] = connFromWire(m)
		s.order = append(s.order, m.ID)
	}
	s.mu.Unlock()
	return nil
}

func connFromWire(ci wire.ConnInfo) core.Connection {
	return core.Connection{ID: ci.ID, Data: []byte(ci.Metadata), Stream: ci.Stream}
}

func codeToErr(e wire.Error) error {
	switch e.Code {
	case wire.CodeMaxParticipants:
		return core.ErrSessionFull
	case wire.CodeNoSuchSession:
		return core.ErrNoSuchSession
	default:
		if e.Error == "" {
			return errors.New(e.Code)
		}
		return fmt.Errorf("%s: %s", e.Code, e.Error)
	}
}

func (s *wsSession) ID() domain.SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *wsSession) LocalConnection() core.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

func (s *wsSession) RemoteConnections() []core.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Connection, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.remotes[id])
	}
	return out
}

func (s *wsSession) OnSignal(signalType string, h func(core.SignalEvent)) {
	s.handlersMu.Lock()
	s.signals[signalType] = append(s.signals[signalType], h)
	s.handlersMu.Unlock()
}

func (s *wsSession) OnStreamCreated(h func(core.Connection)) {
	s.handlersMu.Lock()
	s.streamCreated = append(s.streamCreated, h)
	s.handlersMu.Unlock()
}

func (s *wsSession) OnStreamDestroyed(h func(core.Connection)) {
	s.handlersMu.Lock()
	s.streamDestroyed = append(s.streamDestroyed, h)
	s.handlersMu.Unlock()
}

func (s *wsSession) OnDisconnected(h func(core.Connection)) {
	s.handlersMu.Lock()
	s.disconnected = append(s.disconnected, h)
	s.handlersMu.Unlock()
}

func (s *wsSession) OnDataConnection(h func(domain.ConnectionID, core.DataConnection)) {
	s.handlersMu.Lock()
	s.dataConn = append(s.dataConn, h)
	s.handlersMu.Unlock()
}

func (s *wsSession) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Stop the write pump and wait it out, then write the leave frame as
	// the sole remaining writer so it is flushed before the socket closes.
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.writerDone:
	case <-time.After(5 * time.Second):
	}

	b, _ := json.Marshal(wire.Envelope{Type: wire.TypeLeave})
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.log.Debug().Err(err).Msg("leave write")
	}

	s.closePeers()
	return s.conn.Close()
}

func (s *wsSession) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
