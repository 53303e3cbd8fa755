package app

import (
	"sync"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/dkeye/realm/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Registry maps an identity to its one live connection. A second connect
// of the same identity replaces the first (last connect wins).
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]core.MemberSession
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.UserID]core.MemberSession),
	}
}

// Register binds the session to its identity and returns the connection
// it replaced, if any.
func (r *Registry) Register(sess core.MemberSession) (core.MemberSession, bool) {
	id := sess.Identity()
	r.mu.Lock()
	prev, replaced := r.sessions[id]
	r.sessions[id] = sess
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.OnlineUsers.Set(float64(n))
	ev := log.Info().Str("module", "app.registry").Str("user", string(id)).Str("sid", string(sess.ID()))
	if replaced {
		ev = ev.Str("replaced_sid", string(prev.ID()))
	}
	ev.Msg("registered")
	return prev, replaced && prev.ID() != sess.ID()
}

func (r *Registry) Lookup(id domain.UserID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

func (r *Registry) IsOnline(id domain.UserID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Unregister removes the entry only while it still points at sid, so a
// superseded connection cannot evict its successor.
func (r *Registry) Unregister(id domain.UserID, sid core.SessionID) bool {
	r.mu.Lock()
	cur, ok := r.sessions[id]
	if !ok || cur.ID() != sid {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.OnlineUsers.Set(float64(n))
	log.Info().Str("module", "app.registry").Str("user", string(id)).Str("sid", string(sid)).Msg("unregistered")
	return true
}

func (r *Registry) List() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
