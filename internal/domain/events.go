package domain

// EventName identifies an application-facing widget event.
type EventName string

// The stable event set exposed to host applications through the widget bus.
const (
	EventJoiningCall EventName = "joining_call"
	EventJoinedCall  EventName = "joined_call"

	EventLeavingCall EventName = "leaving_call"
	EventLeftCall    EventName = "left_call"

	EventCalling EventName = "calling"
	EventCalled  EventName = "called"

	// received incoming call signal
	EventIncomingCall EventName = "incoming_call"
	// someone disconnected (incoming call cancelled)
	EventLeft EventName = "left"

	EventParticipantJoined EventName = "participant_joined"
	EventParticipantLeft   EventName = "participant_left"

	EventMessageReceived EventName = "message_received"
	EventMessageSent     EventName = "message_sent"
	EventFileReceived    EventName = "file_received"
	EventFileSent        EventName = "file_sent"

	EventVideoElementCreated   EventName = "video_element_created"
	EventVideoElementDestroyed EventName = "video_element_destroyed"

	EventAfterInit EventName = "after_init"
)
