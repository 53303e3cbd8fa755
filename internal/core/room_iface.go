package core

import (
	"github.com/dkeye/realm/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the room manager.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	HasIdentity(id domain.UserID) bool

	AddMember(ms MemberSession)
	// RemoveMember reports whether the room is empty afterwards.
	RemoveMember(sid SessionID) bool
	Broadcast(exclude SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}
