package api

import (
	"context"
	"errors"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/signals"
)

// Consultant is the operator side of a call: it listens for incoming
// calls and joins the sessions clients opened.
type Consultant struct {
	*API
}

func NewConsultant(opts Options) *Consultant {
	return &Consultant{API: New(opts)}
}

// AnswerFunc joins the session of one incoming call.
type AnswerFunc func(ctx context.Context) (core.Session, error)

// OnIncomingCall subscribes to new calls. Each event carries the caller
// and an answer function bound to that call's session.
func (c *Consultant) OnIncomingCall(ctx context.Context, h func(sp domain.SessionParticipant, answer AnswerFunc)) error {
	return c.Signals.OnCall(ctx, func(sp domain.SessionParticipant) {
		sessionID := sp.Session.SessionID
		h(sp, func(ctx context.Context) (core.Session, error) {
			return c.Answer(ctx, sessionID)
		})
	})
}

// Answer joins an existing call session and announces the join. When the
// session is already at capacity the refusal itself becomes the capacity
// signal, so every consultant learns the call is no longer joinable, and
// ErrSessionFull is returned.
func (c *Consultant) Answer(ctx context.Context, sessionID domain.SessionID) (core.Session, error) {
	sess, err := c.connectMedia(ctx, core.JoinOptions{
		SessionID: sessionID,
		Role:      core.RolePublisher,
	})
	if err != nil {
		if errors.Is(err, core.ErrSessionFull) {
			full := domain.SessionInfo{SessionID: sessionID}
			if serr := c.Signals.MaxParticipants(ctx, full); serr != nil {
				c.log.Error().Err(serr).Msg("capacity signal failed")
			}
		}
		return nil, err
	}

	flags, err := c.publishFlags(ctx)
	if err == nil && (flags.HasAudio || flags.HasVideo) {
		if perr := sess.Publish(ctx, flags); perr != nil {
			c.log.Warn().Err(perr).Msg("consultant publish failed")
		}
	}

	if err := c.Signals.Answer(ctx, signals.SnapshotInfo(sess)); err != nil {
		c.log.Error().Err(err).Msg("answer signal failed")
		_ = sess.Disconnect()
		c.setIdle()
		c.clearSession()
		return nil, err
	}
	return sess, nil
}

func (c *Consultant) clearSession() {
	c.mu.Lock()
	c.sess = nil
	c.chat = nil
	c.mu.Unlock()
}
