// Package wire is the single source of truth for the frame types moving
// between participants and the relay over the session WebSocket.
package wire

import (
	"encoding/json"

	"github.com/dkeye/consult/internal/domain"
)

// Client to server frame types.
const (
	TypeJoin      = "join"
	TypePublish   = "publish"
	TypeUnpublish = "unpublish"
	TypeSignal    = "signal"
	TypeLeave     = "leave"
	TypePing      = "ping"
)

// Server to client frame types.
const (
	TypeAck             = "ack"
	TypeError           = "error"
	TypeJoined          = "joined"
	TypeMemberJoined    = "member_joined"
	TypeMemberLeft      = "member_left"
	TypeStreamCreated   = "stream_created"
	TypeStreamDestroyed = "stream_destroyed"
	TypePong            = "pong"
)

// Peer-to-peer frames relayed verbatim between two connections.
const (
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

// Error codes carried by Error frames.
const (
	CodeMaxParticipants = "max_participants"
	CodeNoSuchSession   = "no_such_session"
	CodeBadPayload      = "bad_payload"
	CodeNotJoined       = "not_joined"
)

// Envelope is the minimal prefix every frame decodes to before routing.
type Envelope struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
}

// ConnInfo describes one connection of a session to its peers.
type ConnInfo struct {
	ID        domain.ConnectionID `json:"id"`
	Metadata  json.RawMessage     `json:"metadata,omitempty"`
	Stream    domain.StreamFlags  `json:"stream"`
	Published bool                `json:"published"`
}

// Join asks the relay to add this connection to a session. An empty
// Session creates a fresh one.
type Join struct {
	Type     string           `json:"type"`
	Ref      string           `json:"ref"`
	Session  domain.SessionID `json:"session,omitempty"`
	Role     string           `json:"role"`
	Metadata json.RawMessage  `json:"metadata,omitempty"`
}

// Joined confirms a join with the allotted identifiers and the current
// membership snapshot.
type Joined struct {
	Type       string           `json:"type"`
	Ref        string           `json:"ref"`
	Session    domain.SessionID `json:"session"`
	Connection ConnInfo         `json:"connection"`
	Members    []ConnInfo       `json:"members"`
}

type Publish struct {
	Type   string             `json:"type"`
	Ref    string             `json:"ref"`
	Stream domain.StreamFlags `json:"stream"`
}

// Signal carries one typed out-of-band event. To limits delivery to the
// named connections; empty To broadcasts to all but the sender.
type Signal struct {
	Type       string                `json:"type"`
	Ref        string                `json:"ref,omitempty"`
	SignalType string                `json:"signalType"`
	From       domain.ConnectionID   `json:"from,omitempty"`
	Data       json.RawMessage       `json:"data,omitempty"`
	To         []domain.ConnectionID `json:"to,omitempty"`
}

// MemberEvent notifies session members about another member's lifecycle:
// joined, left, stream created, stream destroyed.
type MemberEvent struct {
	Type       string   `json:"type"`
	Connection ConnInfo `json:"connection"`
}

type Ack struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

type Error struct {
	Type  string `json:"type"`
	Ref   string `json:"ref,omitempty"`
	Code  string `json:"code"`
	Error string `json:"error,omitempty"`
}

// RTC is a WebRTC negotiation frame (offer/answer/candidate) relayed
// between two members negotiating a peer data channel.
type RTC struct {
	Type          string              `json:"type"`
	To            domain.ConnectionID `json:"to,omitempty"`
	From          domain.ConnectionID `json:"from,omitempty"`
	SDP           string              `json:"sdp,omitempty"`
	Candidate     string              `json:"candidate,omitempty"`
	SDPMid        string              `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16              `json:"sdpMLineIndex,omitempty"`
}
