// Package api is the participant-facing call API: placing, answering and
// leaving calls on top of the session boundary, the signaling protocol
// and the backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dkeye/consult/internal/backend"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/signals"
	"github.com/dkeye/consult/internal/transport"
)

var (
	ErrAlreadyInCall = errors.New("already in a call")
	ErrNotInCall     = errors.New("not in a call")
)

// State tracks the call lifecycle of one participant.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// ParticipantLeftHandler receives the metadata of a departed remote
// participant.
type ParticipantLeftHandler func(domain.ParticipantMetadata)

// API is the shared call machinery of clients and consultants. Concrete
// participant types embed it and add their role's operations.
type API struct {
	Signals *signals.Signals

	connector core.Connector
	backend   *backend.Client
	profile   domain.Profile
	metadata  domain.ParticipantMetadata
	prober    DeviceProber
	log       zerolog.Logger

	mu    sync.Mutex
	state State
	sess  core.Session
	chat  *transport.ChatTransports

	leftMu   sync.RWMutex
	left     []leftEntry
	maxWatch *sync.Once
}

type leftEntry struct {
	types   []domain.ParticipantType
	handler ParticipantLeftHandler
}

// Options wires one participant API instance.
type Options struct {
	Connector core.Connector
	Signals   *signals.Signals
	Backend   *backend.Client
	Profile   domain.Profile
	Metadata  domain.ParticipantMetadata
	Prober    DeviceProber
	Logger    zerolog.Logger
}

func New(opts Options) *API {
	prober := opts.Prober
	if prober == nil {
		prober = StaticProber{Flags: opts.Profile.Settings.Streams.Publisher}
	}
	return &API{
		Signals:   opts.Signals,
		connector: opts.Connector,
		backend:   opts.Backend,
		profile:   opts.Profile,
		metadata:  opts.Metadata,
		prober:    prober,
		log:       opts.Logger.With().Str("module", "api").Logger(),
		maxWatch:  new(sync.Once),
	}
}

func (a *API) Profile() domain.Profile              { return a.profile }
func (a *API) Metadata() domain.ParticipantMetadata { return a.metadata }

func (a *API) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Session returns the live media session, if any.
func (a *API) Session() (core.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess, a.sess != nil
}

// Chat returns the chat transports of the live call, if any.
func (a *API) Chat() (*transport.ChatTransports, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chat, a.chat != nil
}

// OnParticipantLeft registers a handler for remote departures. With types
// given, only participants of those kinds are reported. The local
// participant is never reported, even when its metadata echoes back.
func (a *API) OnParticipantLeft(h ParticipantLeftHandler, types ...domain.ParticipantType) {
	a.leftMu.Lock()
	a.left = append(a.left, leftEntry{types: types, handler: h})
	a.leftMu.Unlock()
}

// connectMedia joins a media session and installs the shared watches:
// capacity on stream creation, departures, chat transports.
func (a *API) connectMedia(ctx context.Context, opts core.JoinOptions) (core.Session, error) {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return nil, ErrAlreadyInCall
	}
	a.state = StateConnecting
	a.mu.Unlock()

	metadata, err := json.Marshal(a.metadata)
	if err != nil {
		a.setIdle()
		return nil, err
	}
	opts.Metadata = metadata

	sess, err := a.connector.Connect(ctx, opts)
	if err != nil {
		a.setIdle()
		return nil, err
	}

	chat := transport.NewChatTransports(sess, a.backend)
	if dp, ok := sess.(core.DataChannelProvider); ok {
		dp.OnDataConnection(chat.FilePeers.AddPeer)
	}

	sess.OnStreamCreated(func(conn core.Connection) {
		a.watchCapacity(sess)
	})
	sess.OnDisconnected(func(conn core.Connection) {
		chat.FilePeers.RemovePeer(conn.ID)
		a.fireParticipantLeft(conn)
	})
	sess.OnStreamDestroyed(func(conn core.Connection) {
		a.fireParticipantLeft(conn)
	})

	if err := a.backend.LogConnection(ctx, sess.ID(), sess.LocalConnection().ID); err != nil {
		if backend.IsStatus(err, 400) {
			a.log.Error().Err(err).Msg("connection audit rejected")
			_ = sess.Disconnect()
			a.setIdle()
			return nil, err
		}
		a.log.Warn().Err(err).Msg("connection audit failed")
	}

	a.mu.Lock()
	a.state = StateConnected
	a.sess = sess
	a.chat = chat
	a.mu.Unlock()
	a.log.Info().Str("session", string(sess.ID())).Msg("media session connected")
	return sess, nil
}

// watchCapacity raises the capacity signal once when the session reaches
// the configured participant limit. The relay refuses joins beyond the
// limit, so a full room is the terminal state this watch reports.
func (a *API) watchCapacity(sess core.Session) {
	limit := a.profile.Settings.Init.MaxParticipants
	if limit <= 0 {
		return
	}
	if len(sess.RemoteConnections())+1 < limit {
		return
	}
	a.mu.Lock()
	once := a.maxWatch
	a.mu.Unlock()
	once.Do(func() {
		a.log.Warn().Str("session", string(sess.ID())).Int("limit", limit).Msg("session at capacity")
		if err := a.Signals.MaxParticipants(context.Background(), signals.SnapshotInfo(sess)); err != nil {
			a.log.Error().Err(err).Msg("capacity signal failed")
		}
	})
}

// fireParticipantLeft decodes the departed connection's metadata and
// notifies matching handlers. The local participant is filtered by email.
func (a *API) fireParticipantLeft(conn core.Connection) {
	meta := domain.DecodeParticipantMetadata(conn.Data)
	if meta.System.Profile.Email != "" && meta.System.Profile.Email == a.profile.Email {
		return
	}

	a.leftMu.RLock()
	entries := make([]leftEntry, len(a.left))
	copy(entries, a.left)
	a.leftMu.RUnlock()

	for _, e := range entries {
		if len(e.types) > 0 && !containsType(e.types, meta.System.Type) {
			continue
		}
		e.handler(meta)
	}
}

func containsType(types []domain.ParticipantType, t domain.ParticipantType) bool {
	for _, pt := range types {
		if pt == t || pt == domain.ParticipantTypeAll {
			return true
		}
	}
	return false
}

// Leave signals departure before any local teardown, so consultants see
// the leave even when teardown fails midway. Teardown runs regardless of
// signal delivery; all errors are reported together.
func (a *API) Leave(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateConnected {
		a.mu.Unlock()
		return ErrNotInCall
	}
	a.state = StateDisconnecting
	sess := a.sess
	a.mu.Unlock()

	var errs []error
	if err := a.Signals.Leave(ctx, signals.SnapshotInfo(sess)); err != nil {
		a.log.Warn().Err(err).Msg("leave signal failed")
		errs = append(errs, err)
	}
	if err := sess.Unpublish(ctx); err != nil && !errors.Is(err, core.ErrDisconnected) {
		errs = append(errs, err)
	}
	if err := sess.Disconnect(); err != nil {
		errs = append(errs, err)
	}

	a.mu.Lock()
	a.state = StateIdle
	a.sess = nil
	a.chat = nil
	a.maxWatch = new(sync.Once)
	a.mu.Unlock()
	a.log.Info().Msg("left call")
	return errors.Join(errs...)
}

// Disconnect leaves any live call and closes the signaling session.
func (a *API) Disconnect(ctx context.Context) error {
	err := a.Leave(ctx)
	if errors.Is(err, ErrNotInCall) {
		err = nil
	}
	if serr := a.Signals.Disconnect(); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

func (a *API) setIdle() {
	a.mu.Lock()
	a.state = StateIdle
	a.mu.Unlock()
}

// publishFlags clamps the configured publisher flags to what the device
// prober reports available.
func (a *API) publishFlags(ctx context.Context) (domain.StreamFlags, error) {
	want := a.profile.Settings.Streams.Publisher
	have, err := a.prober.Probe(ctx)
	if err != nil {
		return domain.StreamFlags{}, err
	}
	return domain.StreamFlags{
		HasAudio: want.HasAudio && have.HasAudio,
		HasVideo: want.HasVideo && have.HasVideo,
	}, nil
}
