package domain

import "time"

type MessageType string

const (
	MessageText MessageType = "text"
	MessageFile MessageType = "file"
)

// TextMessage is the chat text payload carried by the text transport.
type TextMessage struct {
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// FileMessage is the chat file payload carried by the file transport.
// Data is the raw content; Name/Mime/Size describe it to receivers.
type FileMessage struct {
	Name string    `json:"name"`
	Mime string    `json:"type"`
	Size int64     `json:"size"`
	Data []byte    `json:"data"`
	Time time.Time `json:"time"`
}

// MessageRecord is the backend audit format for delivered chat messages.
type MessageRecord struct {
	Type       MessageType  `json:"type"`
	Text       string       `json:"text,omitempty"`
	FileName   string       `json:"name,omitempty"`
	FileMime   string       `json:"fileType,omitempty"`
	FileSize   int64        `json:"size,omitempty"`
	Time       time.Time    `json:"time"`
	Connection ConnectionID `json:"connection"`
}
