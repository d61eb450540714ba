package core

import (
	"context"

	"github.com/dkeye/consult/internal/domain"
)

// RecvSystem tags a received message with its origin. Stream is
// StreamPublisher for a participant's own echoed sends and
// StreamSubscriber for everything that arrived over the wire.
type RecvSystem struct {
	From   domain.ConnectionID `json:"from"`
	Stream domain.StreamOrigin `json:"stream"`
}

// RecvMessage wraps a payload with delivery metadata.
type RecvMessage[M any] struct {
	Custom M          `json:"custom"`
	System RecvSystem `json:"system"`
}

type HandleRecvMessage[M any] func(RecvMessage[M])

// Transport is an abstract messenger: it can send messages of one payload
// type to all participants of a session and deliver received ones to any
// number of registered handlers, in registration order.
type Transport[M any] interface {
	Send(ctx context.Context, message M) error
	OnReceived(h HandleRecvMessage[M])
}
