package core

// Frame is a raw wire payload delivered to a relay member.
type Frame []byte

// SignalConnection abstracts a member's outbound signaling endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
