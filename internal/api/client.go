package api

import (
	"context"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/signals"
)

// Client is the anonymous-visitor side of a call: it opens fresh media
// sessions and announces them to the tenant's consultants.
type Client struct {
	*API
}

func NewClient(opts Options) *Client {
	return &Client{API: New(opts)}
}

// Call opens a fresh media session, publishes per the account settings
// and announces the call. Audio/video both enabled where available.
func (c *Client) Call(ctx context.Context) (core.Session, error) {
	flags, err := c.publishFlags(ctx)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, flags)
}

// CallAudio places an audio-only call regardless of video availability.
func (c *Client) CallAudio(ctx context.Context) (core.Session, error) {
	flags, err := c.publishFlags(ctx)
	if err != nil {
		return nil, err
	}
	flags.HasVideo = false
	return c.call(ctx, flags)
}

func (c *Client) call(ctx context.Context, flags domain.StreamFlags) (core.Session, error) {
	sess, err := c.connectMedia(ctx, core.JoinOptions{Role: core.RolePublisher})
	if err != nil {
		return nil, err
	}
	if err := sess.Publish(ctx, flags); err != nil {
		c.log.Error().Err(err).Msg("publish failed")
		c.teardown(sess)
		return nil, err
	}
	if err := c.Signals.Call(ctx, signals.SnapshotInfo(sess)); err != nil {
		c.log.Error().Err(err).Msg("call signal failed")
		c.teardown(sess)
		return nil, err
	}
	return sess, nil
}

func (c *Client) teardown(sess core.Session) {
	_ = sess.Disconnect()
	c.mu.Lock()
	c.state = StateIdle
	c.sess = nil
	c.chat = nil
	c.mu.Unlock()
}
