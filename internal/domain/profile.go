package domain

// BaseProfile is the account identity shared by profile and user-info
// backend payloads.
type BaseProfile struct {
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Surname    string `json:"surname,omitempty"`
	Patronymic string `json:"patronymic,omitempty"`
	Role       Role   `json:"role"`
}

type Role struct {
	Role string `json:"role"`
}

type Profile struct {
	BaseProfile
	Settings Settings `json:"settings"`
}

type UserInfo struct {
	BaseProfile
	Avatar string `json:"avatar,omitempty"` // base64
}

// ParticipantInfo is what a participant publishes about itself inside
// metadata: profile plus user-info extras.
type ParticipantInfo struct {
	Profile
	Avatar string `json:"avatar,omitempty"`
}

// Tenant groups clients and consultants. Its key names the shared
// signaling session.
type Tenant struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Logo     string `json:"logo,omitempty"`
	Greeting string `json:"greeting,omitempty"`
}

// Settings is the per-account widget configuration served by the backend.
type Settings struct {
	Streams StreamsSettings `json:"streams"`
	Chat    ChatSettings    `json:"chat"`
	Init    InitSettings    `json:"init"`
}

type StreamsSettings struct {
	Publisher StreamFlags `json:"publisher"`
}

type ChatSettings struct {
	Text bool `json:"text"`
	File bool `json:"file"`
}

type InitSettings struct {
	Record          bool `json:"record,omitempty"`
	MaxParticipants int  `json:"maxParticipants"`
}
