// Package signals implements the call-signaling protocol.
//
// Only participants of the same tenant can send/receive signals to each
// other. All signals are fired in a session whose name equals the tenant
// key. These are system sessions without audio/video, only signal events.
// Signals are delivered to consultant-role connections only, to prevent
// anonymous users from observing or spoofing call events.
package signals

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	SignalCall            = "call:call"
	SignalAnswer          = "call:answer"
	SignalLeave           = "call:leave"
	SignalMaxParticipants = "call:maxParticipants"
)

type HandleSessionParticipant func(domain.SessionParticipant)

// roleResolver is the slice of the backend the protocol needs.
type roleResolver interface {
	ParticipantRoles(ctx context.Context, ids []domain.ConnectionID) (map[domain.ConnectionID]string, error)
}

// Signals drives one participant's end of the signaling session. The
// underlying connection is established lazily, at most once, and shared
// by every send and subscribe issued through this object.
type Signals struct {
	connector core.Connector
	roles     roleResolver
	tenant    domain.Tenant
	metadata  domain.ParticipantMetadata

	mu   sync.Mutex
	done chan struct{} // nil: connect not started; open: in flight; closed: settled
	sess core.Session
	err  error

	cacheMu   sync.Mutex
	roleCache map[domain.ConnectionID]string

	maxOnce sync.Once
}

func New(connector core.Connector, roles roleResolver, tenant domain.Tenant, metadata domain.ParticipantMetadata) *Signals {
	return &Signals{
		connector: connector,
		roles:     roles,
		tenant:    tenant,
		metadata:  metadata,
		roleCache: make(map[domain.ConnectionID]string),
	}
}

func (s *Signals) Tenant() domain.Tenant { return s.tenant }

// Call announces a new client session to the tenant's consultants.
func (s *Signals) Call(ctx context.Context, info domain.SessionInfo) error {
	return s.SignalParticipant(ctx, SignalCall, info)
}

// Answer announces that this participant joined an existing session.
func (s *Signals) Answer(ctx context.Context, info domain.SessionInfo) error {
	return s.SignalParticipant(ctx, SignalAnswer, info)
}

func (s *Signals) Leave(ctx context.Context, info domain.SessionInfo) error {
	return s.SignalParticipant(ctx, SignalLeave, info)
}

// MaxParticipants reports a session at capacity. Sent by whichever
// participant observed the condition.
func (s *Signals) MaxParticipants(ctx context.Context, info domain.SessionInfo) error {
	return s.SignalParticipant(ctx, SignalMaxParticipants, info)
}

func (s *Signals) OnCall(ctx context.Context, handle HandleSessionParticipant) error {
	return s.OnParticipant(ctx, SignalCall, handle)
}

func (s *Signals) OnAnswered(ctx context.Context, handle HandleSessionParticipant) error {
	return s.OnParticipant(ctx, SignalAnswer, handle)
}

func (s *Signals) OnLeft(ctx context.Context, handle HandleSessionParticipant) error {
	return s.OnParticipant(ctx, SignalLeave, handle)
}

// OnFirstMaxParticipants invokes handle at most once for this Signals
// instance, no matter how many capacity events arrive. Guards the host
// application from repeated "room full" notifications.
func (s *Signals) OnFirstMaxParticipants(ctx context.Context, handle HandleSessionParticipant) error {
	return s.OnParticipant(ctx, SignalMaxParticipants, func(sp domain.SessionParticipant) {
		s.maxOnce.Do(func() { handle(sp) })
	})
}

// SignalParticipant delivers one signal to all consultant-role
// connections currently in the signaling session. With no consultant
// present the signal is dropped: there is no one to notify, and that is
// not an error. Role resolution and delivery failures propagate.
func (s *Signals) SignalParticipant(ctx context.Context, signalType string, info domain.SessionInfo) error {
	payload := domain.SessionParticipant{
		Session:     info,
		Participant: s.metadata,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	sess, err := s.session(ctx)
	if err != nil {
		return err
	}

	recipients, err := s.consultantRecipients(ctx, sess.RemoteConnections())
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		log.Debug().Str("module", "signals").Str("type", signalType).Msg("no consultants in session, signal dropped")
		return nil
	}

	return sess.Signal(ctx, signalType, data, recipients)
}

// OnParticipant registers handle for one signal kind. Malformed payloads
// decode to the zero SessionParticipant; the handler always runs.
func (s *Signals) OnParticipant(ctx context.Context, signalType string, handle HandleSessionParticipant) error {
	sess, err := s.session(ctx)
	if err != nil {
		return err
	}
	sess.OnSignal(signalType, func(ev core.SignalEvent) {
		handle(domain.DecodeSessionParticipant(ev.Data))
	})
	return nil
}

// Disconnect tears down the signaling-session connection if it was ever
// established.
func (s *Signals) Disconnect() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	if s.err != nil {
		return nil
	}
	return s.sess.Disconnect()
}

// session returns the shared signaling-session connection, dialing it on
// first use. Concurrent callers await the same in-flight attempt; the
// result, success or failure, is memoized for the object's lifetime.
func (s *Signals) session(ctx context.Context) (core.Session, error) {
	s.mu.Lock()
	if s.done == nil {
		s.done = make(chan struct{})
		go func() {
			metadata, err := json.Marshal(s.metadata)
			if err == nil {
				s.sess, s.err = s.connector.Connect(context.Background(), core.JoinOptions{
					SessionID: domain.SessionID(s.tenant.Key),
					Role:      core.RoleSubscriber,
					Metadata:  metadata,
				})
			} else {
				s.err = err
			}
			if s.err != nil {
				log.Error().Err(s.err).Str("module", "signals").Str("tenant", s.tenant.Key).Msg("signaling session connect failed")
			}
			close(s.done)
		}()
	}
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return s.sess, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// consultantRecipients filters connections to consultant-role ones.
// Roles are resolved through the backend with a cache that only grows for
// the lifetime of this object; concurrent lookups of the same uncached id
// may each hit the backend, only resolved entries are kept.
func (s *Signals) consultantRecipients(ctx context.Context, conns []core.Connection) ([]domain.ConnectionID, error) {
	s.cacheMu.Lock()
	var missing []domain.ConnectionID
	for _, c := range conns {
		if _, ok := s.roleCache[c.ID]; !ok {
			missing = append(missing, c.ID)
		}
	}
	s.cacheMu.Unlock()

	if len(missing) > 0 {
		roles, err := s.roles.ParticipantRoles(ctx, missing)
		if err != nil {
			return nil, err
		}
		s.cacheMu.Lock()
		for id, role := range roles {
			s.roleCache[id] = role
		}
		s.cacheMu.Unlock()
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	var out []domain.ConnectionID
	for _, c := range conns {
		if domain.IsConsultantRole(s.roleCache[c.ID]) {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

// SnapshotInfo copies the signal-relevant subset of a live session. The
// snapshot reflects state at call time, not the mutable session.
func SnapshotInfo(sess core.Session) domain.SessionInfo {
	return domain.SessionInfo{
		SessionID: sess.ID(),
		Connection: domain.SessionConnection{
			Stream: sess.LocalConnection().Stream,
		},
	}
}
