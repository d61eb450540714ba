package widget

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dkeye/consult/internal/bus"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/signals"
)

// Watcher keeps the consultant's view of pending incoming calls. Calls
// appear on the call signal and disappear when answered, abandoned or
// reported full.
type Watcher struct {
	signals *signals.Signals
	bus     *bus.Bus
	log     zerolog.Logger

	mu    sync.Mutex
	calls map[domain.SessionID]domain.SessionParticipant
}

func NewWatcher(sig *signals.Signals, b *bus.Bus, logger zerolog.Logger) *Watcher {
	return &Watcher{
		signals: sig,
		bus:     b,
		log:     logger.With().Str("module", "widget.watcher").Logger(),
		calls:   make(map[domain.SessionID]domain.SessionParticipant),
	}
}

// Start subscribes to the signaling session. Must run before calls can
// be observed; reconnection is the caller's concern.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.signals.OnCall(ctx, w.onCall); err != nil {
		return err
	}
	if err := w.signals.OnAnswered(ctx, w.onAnswered); err != nil {
		return err
	}
	if err := w.signals.OnLeft(ctx, w.onLeft); err != nil {
		return err
	}
	return w.signals.OnParticipant(ctx, signals.SignalMaxParticipants, w.onFull)
}

// PendingCalls snapshots the calls nobody answered yet.
func (w *Watcher) PendingCalls() []domain.SessionParticipant {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.SessionParticipant, 0, len(w.calls))
	for _, sp := range w.calls {
		out = append(out, sp)
	}
	return out
}

func (w *Watcher) onCall(sp domain.SessionParticipant) {
	id := sp.Session.SessionID
	if id == "" {
		w.log.Warn().Msg("call signal without session id")
		return
	}
	w.mu.Lock()
	w.calls[id] = sp
	w.mu.Unlock()
	w.log.Info().Str("session", string(id)).Str("client", sp.Participant.System.ClientID).Msg("incoming call")
	w.bus.Emit(domain.EventIncomingCall, sp)
}

func (w *Watcher) onAnswered(sp domain.SessionParticipant) {
	w.drop(sp.Session.SessionID)
	w.bus.Emit(domain.EventCalled, sp)
}

func (w *Watcher) onLeft(sp domain.SessionParticipant) {
	w.drop(sp.Session.SessionID)
	w.bus.Emit(domain.EventLeft, sp)
}

func (w *Watcher) onFull(sp domain.SessionParticipant) {
	id := sp.Session.SessionID
	w.log.Info().Str("session", string(id)).Msg("call no longer joinable")
	w.drop(id)
	w.bus.Emit(domain.EventLeft, sp)
}

func (w *Watcher) drop(id domain.SessionID) {
	if id == "" {
		return
	}
	w.mu.Lock()
	delete(w.calls, id)
	w.mu.Unlock()
}
