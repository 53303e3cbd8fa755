package core

import (
	"maps"
	"sync"

	"github.com/dkeye/realm/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room   *domain.Room
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
	byUser map[domain.UserID]int
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:   room,
		bySID:  make(map[SessionID]MemberSession),
		byUser: make(map[domain.UserID]int),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) HasIdentity(id domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[id] > 0
}

func (r *roomImpl) AddMember(ms MemberSession) {
	sid, u := ms.ID(), ms.Identity()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		return
	}
	r.bySID[sid] = ms
	r.byUser[u]++
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Str("user", string(u)).Msg("member added")
}

func (r *roomImpl) RemoveMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ms, ok := r.bySID[sid]; ok {
		u := ms.Identity()
		if r.byUser[u]--; r.byUser[u] <= 0 {
			delete(r.byUser, u)
		}
		delete(r.bySID, sid)
		log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")
	}
	return len(r.bySID) == 0
}

// Broadcast sends to a snapshot of the members so a slow or concurrent
// join/leave never runs under the room lock.
func (r *roomImpl) Broadcast(exclude SessionID, data Frame) PublishResult {
	r.mu.RLock()
	snapshot := make(map[SessionID]MemberSession, len(r.bySID))
	maps.Copy(snapshot, r.bySID)
	r.mu.RUnlock()

	res := PublishResult{}
	for sid, m := range snapshot {
		if sid == exclude {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("exclude", string(exclude)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
