package core

import (
	"sync"

	"github.com/dkeye/realm/internal/domain"
)

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	id     SessionID
	meta   *domain.Member
	signal SignalConnection

	mu    sync.RWMutex
	rooms map[domain.RoomID]struct{}
}

func NewMemberSession(id SessionID, meta *domain.Member, signal SignalConnection) MemberSession {
	return &memberSession{
		id:     id,
		meta:   meta,
		signal: signal,
		rooms:  make(map[domain.RoomID]struct{}),
	}
}

func (m *memberSession) ID() SessionID            { return m.id }
func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Identity() domain.UserID  { return m.meta.User.ID }
func (m *memberSession) Signal() SignalConnection { return m.signal }

func (m *memberSession) JoinedRooms() []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	return out
}

func (m *memberSession) AddRoom(id domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; ok {
		return false
	}
	m.rooms[id] = struct{}{}
	return true
}

func (m *memberSession) RemoveRoom(id domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return false
	}
	delete(m.rooms, id)
	return true
}

func (m *memberSession) InRoom(id domain.RoomID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[id]
	return ok
}
