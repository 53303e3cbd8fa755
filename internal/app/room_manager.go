package app

import (
	"sync"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManager multiplexes connections into broadcast groups. Rooms are
// created on first join and dropped when the last member leaves.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
	out   *Dispatcher
}

func NewRoomManager(out *Dispatcher) *RoomManager {
	return &RoomManager{
		rooms: make(map[domain.RoomID]core.RoomService),
		out:   out,
	}
}

// Join and Leave hold the manager lock so a room being collected can never
// swallow a concurrent join.
func (m *RoomManager) Join(id domain.RoomID, ms core.MemberSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		room = core.NewRoomService(&domain.Room{ID: id})
		m.rooms[id] = room
	}
	room.AddMember(ms)
	ms.AddRoom(id)
	log.Debug().Str("module", "app.rooms").Str("room", string(id)).Str("sid", string(ms.ID())).Msg("joined")
}

func (m *RoomManager) Leave(id domain.RoomID, ms core.MemberSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms.RemoveRoom(id)
	room, ok := m.rooms[id]
	if !ok {
		return
	}
	if room.RemoveMember(ms.ID()) {
		delete(m.rooms, id)
		log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room collected")
	}
}

func (m *RoomManager) LeaveAll(ms core.MemberSession) {
	for _, id := range ms.JoinedRooms() {
		m.Leave(id, ms)
	}
}

func (m *RoomManager) get(id domain.RoomID) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// Broadcast reaches every connection in the room at call time except
// exclude. An empty exclude sends to everyone.
func (m *RoomManager) Broadcast(id domain.RoomID, typ string, data any, exclude core.SessionID) core.PublishResult {
	room, ok := m.get(id)
	if !ok {
		return core.PublishResult{}
	}
	f, err := core.Encode(typ, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("room", string(id)).Str("type", typ).Msg("encode")
		return core.PublishResult{}
	}
	res := room.Broadcast(exclude, f)
	m.out.dropped(room, res.Dropped)
	return res
}

func (m *RoomManager) HasIdentity(id domain.RoomID, uid domain.UserID) bool {
	room, ok := m.get(id)
	return ok && room.HasIdentity(uid)
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	return out
}
