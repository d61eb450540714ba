// Package domain contains entity without logic, just meta-data
package domain

import (
	"encoding/json"
)

type ParticipantType string

const (
	ParticipantClient     ParticipantType = "client"
	ParticipantConsultant ParticipantType = "consultant"
)

// ParticipantTypeAll is accepted by role-filtered handler registries in
// place of a concrete participant type.
const ParticipantTypeAll ParticipantType = "all"

const RoleConsultant = "ROLE_CONSULTANT"

// IsConsultantRole reports whether a backend role string grants consultant
// rights. Only the exact consultant role may observe call signals; derived
// role names are not trusted.
func IsConsultantRole(role string) bool {
	return role == RoleConsultant
}

// ParticipantMetadata describes a participant to its peers. It is embedded
// as serialized data in the session join handshake and in every call signal.
// Immutable once created.
type ParticipantMetadata struct {
	Custom json.RawMessage `json:"custom,omitempty"`
	System SystemMetadata  `json:"system"`
}

// SystemMetadata is the widget-owned part of participant metadata.
// ClientID is set for clients only: a generated id persisted on the device
// and reused across sessions.
type SystemMetadata struct {
	Type     ParticipantType `json:"type"`
	Profile  ParticipantInfo `json:"profile"`
	ClientID string          `json:"clientId,omitempty"`
}

// DecodeParticipantMetadata parses the metadata blob attached to a
// connection. Malformed input yields the zero value, never an error: one
// corrupt handshake must not break listeners.
func DecodeParticipantMetadata(data []byte) ParticipantMetadata {
	var md ParticipantMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return ParticipantMetadata{}
	}
	return md
}
