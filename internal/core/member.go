package core

import (
	"sync"

	"github.com/dkeye/consult/internal/domain"
)

// MemberSession binds a relay connection's identity and its transport
// endpoint. This is what a session room stores and fans out to.
type MemberSession interface {
	ID() domain.ConnectionID
	Role() string
	Metadata() []byte
	// Stream returns the member's published flags; ok is false while the
	// member has not published.
	Stream() (domain.StreamFlags, bool)
	SetStream(flags domain.StreamFlags, published bool)
	Signal() SignalConnection
}

type memberSession struct {
	id       domain.ConnectionID
	role     string
	metadata []byte
	conn     SignalConnection

	mu        sync.RWMutex
	stream    domain.StreamFlags
	published bool
}

func NewMemberSession(id domain.ConnectionID, role string, metadata []byte, conn SignalConnection) MemberSession {
	return &memberSession{id: id, role: role, metadata: metadata, conn: conn}
}

func (m *memberSession) ID() domain.ConnectionID  { return m.id }
func (m *memberSession) Role() string             { return m.role }
func (m *memberSession) Metadata() []byte         { return m.metadata }
func (m *memberSession) Signal() SignalConnection { return m.conn }

func (m *memberSession) Stream() (domain.StreamFlags, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stream, m.published
}

func (m *memberSession) SetStream(flags domain.StreamFlags, published bool) {
	m.mu.Lock()
	m.stream = flags
	m.published = published
	m.mu.Unlock()
}
