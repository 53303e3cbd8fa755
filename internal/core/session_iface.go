package core

import "github.com/dkeye/realm/internal/domain"

// SessionID identifies one live connection, not the user behind it.
type SessionID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() SessionID
	Meta() *domain.Member
	Identity() domain.UserID
	Signal() SignalConnection

	// JoinedRooms is a snapshot of the rooms this connection is in.
	JoinedRooms() []domain.RoomID
	AddRoom(domain.RoomID) bool
	RemoveRoom(domain.RoomID) bool
	InRoom(domain.RoomID) bool
}
