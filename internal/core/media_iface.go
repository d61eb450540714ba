package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/consult/internal/domain"
)

// DataConnection is a peer-to-peer connection carrying a single data
// channel, negotiated through the relay. The file transport rides it.
type DataConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying resources.
	Close()
	IsClosed() bool

	// SendMessage writes one message to the data channel.
	SendMessage(data []byte) error
	// OnMessage sets the callback for inbound data channel messages.
	OnMessage(func(data []byte))
	// OnOpen fires once the data channel is usable.
	OnOpen(func())
	// OnClosed sets a callback for cleanup.
	OnClosed(func())

	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
}

// DataChannelProvider is implemented by sessions that negotiate a peer
// data channel with each remote member. The handler fires once per peer,
// when its channel opens.
type DataChannelProvider interface {
	OnDataConnection(h func(id domain.ConnectionID, conn DataConnection))
}
