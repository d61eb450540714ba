package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

type connEntry struct {
	Session domain.SessionID
	Member  core.MemberSession
	Account *Account
	Cancel  context.CancelFunc
}

// Registry tracks every live relay connection: which session it sits in,
// its member handle and the account that authenticated it. The HTTP side
// reads it to answer role lookups by connection id.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnectionID]*connEntry)}
}

func (r *Registry) Bind(
	id domain.ConnectionID,
	session domain.SessionID,
	member core.MemberSession,
	account *Account,
	cancel context.CancelFunc,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Session: session, Member: member, Account: account, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("session", string(session)).Msg("bound connection")
}

func (r *Registry) Unbind(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbound connection")
}

func (r *Registry) Member(id domain.ConnectionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Member, true
	}
	return nil, false
}

func (r *Registry) SessionOf(id domain.ConnectionID) (domain.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Session, true
	}
	return "", false
}

// RoleOf resolves the backend role of a connection. The fallback for an
// unknown connection is the empty role, never an error.
func (r *Registry) RoleOf(id domain.ConnectionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.Account == nil {
		return "", false
	}
	return e.Account.Profile.Role.Role, true
}

func (r *Registry) Cancel(id domain.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}
