// Package rtc implements the peer data connection on pion. One peer
// connection carries one data channel used by the file transport.
package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/core"
)

const channelLabel = "chat"

type DataChannelConnection struct {
	pc     *webrtc.PeerConnection
	cancel context.CancelFunc

	mu     sync.Mutex
	dc     *webrtc.DataChannel
	closed bool

	onICE    func(webrtc.ICECandidateInit)
	onMsg    func([]byte)
	onOpen   func()
	onClosed func()
}

var _ core.DataConnection = (*DataChannelConnection)(nil)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewDataChannelConnection(cfg webrtc.Configuration) (*DataChannelConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &DataChannelConnection{pc: pc}, nil
}

func (c *DataChannelConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			c.markClosed()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	// answerer side: the channel arrives with the offer
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		c.bindChannel(dc)
	})

	return nil
}

func (c *DataChannelConnection) bindChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		log.Info().Str("module", "rtc").Str("label", dc.Label()).Msg("data channel open")
		if c.onOpen != nil {
			c.onOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.onMsg != nil {
			c.onMsg(msg.Data)
		}
	})
	dc.OnClose(func() {
		c.markClosed()
	})
}

// CreateAndSetOffer opens the channel and returns a fully gathered offer.
func (c *DataChannelConnection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	dc, err := c.pc.CreateDataChannel(channelLabel, nil)
	if err != nil {
		return nil, err
	}
	c.bindChannel(dc)

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

func (c *DataChannelConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

func (c *DataChannelConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *DataChannelConnection) SendMessage(data []byte) error {
	c.mu.Lock()
	dc := c.dc
	closed := c.closed
	c.mu.Unlock()
	if closed || dc == nil {
		return errors.New("data channel is not open")
	}
	if dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("data channel is not open")
	}
	return dc.Send(data)
}

func (c *DataChannelConnection) OnMessage(fn func([]byte))                       { c.onMsg = fn }
func (c *DataChannelConnection) OnOpen(fn func())                                { c.onOpen = fn }
func (c *DataChannelConnection) OnClosed(fn func())                              { c.onClosed = fn }
func (c *DataChannelConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *DataChannelConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *DataChannelConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *DataChannelConnection) markClosed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	if c.onClosed != nil {
		c.onClosed()
	}
}

func (c *DataChannelConnection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Msg("closed")
		}
	}
	c.markClosed()
}
