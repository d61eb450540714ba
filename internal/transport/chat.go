package transport

import (
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

// EchoPolicy decides what a default chat handler does with the sender's
// own echoed messages. Sent messages are usually rendered optimistically
// at send time, so default handlers suppress the echo; handlers that want
// both streams opt in with EchoDeliver.
type EchoPolicy int

const (
	EchoSuppress EchoPolicy = iota
	EchoDeliver
)

// WithEchoPolicy wraps a receive handler according to policy: under
// EchoSuppress only subscriber-tagged messages pass through.
func WithEchoPolicy[M any](policy EchoPolicy, h core.HandleRecvMessage[M]) core.HandleRecvMessage[M] {
	if policy == EchoDeliver {
		return h
	}
	return func(msg core.RecvMessage[M]) {
		if msg.System.Stream == domain.StreamPublisher {
			return
		}
		h(msg)
	}
}

// ChatTransports bundles the two chat channels of one media session.
// Both are composites over a concrete channel and the local repeater, so
// senders see their own messages without a round trip.
type ChatTransports struct {
	Text core.Transport[domain.TextMessage]
	File core.Transport[domain.FileMessage]

	// FilePeers manages the peer connections behind the file channel.
	FilePeers *DataChannelTransport
}

// NewChatTransports builds the default chat stack for a connected
// session: text over session signals, files over peer data channels.
func NewChatTransports(sess core.Session, logger messageLogger) *ChatTransports {
	filePeers := NewDataChannelTransport(sess.LocalConnection().ID, logger)
	return &ChatTransports{
		Text:      NewComposite[domain.TextMessage](NewSignalTransport(sess, logger), NewRepeater[domain.TextMessage](sess)),
		File:      NewComposite[domain.FileMessage](filePeers, NewRepeater[domain.FileMessage](sess)),
		FilePeers: filePeers,
	}
}
