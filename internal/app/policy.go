package app

import (
	"fmt"

	"github.com/dkeye/realm/internal/core"
)

type BackpressureAction int

const (
	KickMember BackpressureAction = iota
	DropFrame
)

// Policy names accepted in configuration.
const (
	PolicyKick = "kick"
	PolicyDrop = "drop"
)

// Policy decides what happens to a connection whose outbound queue is full.
// room is nil for direct sends.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// KickPolicy closes any connection that falls behind. The client
// reconnects and gets a fresh snapshot.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.RoomService, core.MemberSession) BackpressureAction {
	return KickMember
}

// DropPolicy loses conversation-room frames for a lagging connection and
// keeps it open. Direct sends and personal-room notifications still kick:
// call signaling and presence are never resent.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(room core.RoomService, _ core.MemberSession) BackpressureAction {
	if room == nil {
		return KickMember
	}
	if _, ok := room.Room().ID.Conversation(); !ok {
		return KickMember
	}
	return DropFrame
}

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyKick:
		return KickPolicy{}, nil
	case PolicyDrop:
		return DropPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
