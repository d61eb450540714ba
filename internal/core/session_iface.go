package core

import (
	"context"
	"errors"

	"github.com/dkeye/consult/internal/domain"
)

var (
	ErrSessionFull   = errors.New("session full")
	ErrNoSuchSession = errors.New("no such session")
	ErrDisconnected  = errors.New("session disconnected")
)

// SessionRole restricts what a joined connection may do. Subscriber-only
// connections observe signals but never publish a stream; the signaling
// session is joined with RoleSubscriber.
type SessionRole string

const (
	RolePublisher  SessionRole = "publisher"
	RoleSubscriber SessionRole = "subscriber"
)

// Connection is a participant's presence in a session as other members
// see it: identifier, metadata handshake blob, current stream flags.
type Connection struct {
	ID     domain.ConnectionID
	Data   []byte
	Stream domain.StreamFlags
}

// SignalEvent is a typed out-of-band event received through a session.
type SignalEvent struct {
	Type string
	From domain.ConnectionID
	Data []byte
}

// JoinOptions names the session to join. Empty SessionID asks the server
// to create a fresh session.
type JoinOptions struct {
	SessionID domain.SessionID
	Role      SessionRole
	Metadata  []byte
}

// Session is the media-SDK boundary: a named real-time session that can
// carry published streams and typed signals addressed to a subset of its
// connections. Handlers registered through On* are invoked from the
// session's receive loop; they must not block.
type Session interface {
	ID() domain.SessionID
	LocalConnection() Connection
	RemoteConnections() []Connection

	// Signal delivers a typed event to the given connections. An empty
	// recipient list addresses every other connection in the session.
	Signal(ctx context.Context, signalType string, data []byte, to []domain.ConnectionID) error
	OnSignal(signalType string, h func(SignalEvent))

	OnStreamCreated(h func(Connection))
	OnStreamDestroyed(h func(Connection))
	OnDisconnected(h func(Connection))

	Publish(ctx context.Context, flags domain.StreamFlags) error
	Unpublish(ctx context.Context) error
	Disconnect() error
}

// Connector dials sessions. Owned by the adapter; callers treat returned
// sessions as live until Disconnect.
type Connector interface {
	Connect(ctx context.Context, opts JoinOptions) (Session, error)
}
