package app

import "github.com/dkeye/consult/internal/core"

// BackpressureAction is what the relay does with a member whose send
// queue rejected a frame.
type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides the fate of slow session members.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// KickSlowPolicy disconnects a member on the first rejected frame.
type KickSlowPolicy struct{}

func (KickSlowPolicy) OnBackPressure(core.RoomService, core.MemberSession) BackpressureAction {
	return KickMember
}

// LossyPolicy drops the frame and keeps the member.
type LossyPolicy struct{}

func (LossyPolicy) OnBackPressure(core.RoomService, core.MemberSession) BackpressureAction {
	return DropFrame
}
