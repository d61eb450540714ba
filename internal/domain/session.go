package domain

import "encoding/json"

type (
	SessionID    string
	ConnectionID string
)

// StreamOrigin distinguishes a participant's own published stream from
// streams it subscribes to. Chat messages carry it so receivers can tell
// their own echoed sends apart from remote ones.
type StreamOrigin string

const (
	StreamPublisher  StreamOrigin = "publisher"
	StreamSubscriber StreamOrigin = "subscriber"
)

type StreamFlags struct {
	HasAudio bool `json:"hasAudio"`
	HasVideo bool `json:"hasVideo"`
}

// SessionInfo is a minimal snapshot of a media session taken at
// signal-send time. A deliberate subset of the live session: small enough
// to serialize into every signal, and decoupled from later mutation.
type SessionInfo struct {
	SessionID  SessionID         `json:"sessionId"`
	Connection SessionConnection `json:"connection"`
}

type SessionConnection struct {
	Stream StreamFlags `json:"stream"`
}

// SessionParticipant is the payload unit of every call signal: who is
// calling/answering/leaving, and the state of their session at that moment.
type SessionParticipant struct {
	Session     SessionInfo         `json:"session"`
	Participant ParticipantMetadata `json:"participant"`
}

// DecodeSessionParticipant parses a signal payload. Malformed input yields
// the zero value rather than an error.
func DecodeSessionParticipant(data []byte) SessionParticipant {
	var sp SessionParticipant
	if err := json.Unmarshal(data, &sp); err != nil {
		return SessionParticipant{}
	}
	return sp
}
