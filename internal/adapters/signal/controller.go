// Package signal is the relay-side WebSocket controller. One upgraded
// connection is one session member; frames are routed by type.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/app"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Rooms     core.RoomFactory
	Registry  *app.Registry
	Directory *app.Directory
	Limiter   *SignalRateLimiter
	Policy    app.Policy

	// ReadLimit caps inbound frame size; PingPeriod bounds how long a
	// connection may stay silent before the relay drops it.
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSignalWSController(rooms core.RoomFactory, reg *app.Registry, dir *app.Directory) *SignalWSController {
	return &SignalWSController{
		Rooms:      rooms,
		Registry:   reg,
		Directory:  dir,
		Limiter:    NewSignalRateLimiter(64, time.Second),
		Policy:     app.KickSlowPolicy{},
		ReadLimit:  1 << 20,
		PingPeriod: 54 * time.Second,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// connState is the per-socket state. id/room/member are set on join and
// cleared on leave; guarded because pumps and handlers share it.
type connState struct {
	ws      *WsSignalConn
	account *app.Account

	mu     sync.Mutex
	id     domain.ConnectionID
	room   core.RoomService
	member core.MemberSession
}

func (st *connState) joined() (domain.ConnectionID, core.RoomService, core.MemberSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.id, st.room, st.member, st.member != nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	account := c.MustGet("account").(*app.Account)
	log.Info().Str("module", "signal").Str("email", account.Profile.Email).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	st := &connState{ws: conn, account: account}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, st)
	}()
}
