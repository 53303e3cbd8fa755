// Package memory keeps users, conversations, messages and call history in
// process. It backs the development mode and the scenario tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/google/uuid"
)

type conversation struct {
	id           domain.ConversationID
	participants []domain.UserID
	unread       map[domain.UserID]int
	lastMessage  domain.MessageID
	lastAt       time.Time
	messages     []*domain.Message
}

// Store implements every durable port of the gateway.
type Store struct {
	Now func() time.Time
	// AutoProvision makes Profile create a bare user for unknown ids
	// instead of failing, so any valid token can connect in dev mode.
	AutoProvision bool

	mu       sync.RWMutex
	users    map[domain.UserID]*domain.User
	friends  map[domain.UserID][]domain.UserID
	convs    map[domain.ConversationID]*conversation
	records  []domain.CallRecord
	failNext error
}

var (
	_ core.UserDirectory     = (*Store)(nil)
	_ core.ConversationStore = (*Store)(nil)
	_ core.MessageStore      = (*Store)(nil)
	_ core.CallRecordStore   = (*Store)(nil)
)

func New() *Store {
	return &Store{
		Now:     time.Now,
		users:   make(map[domain.UserID]*domain.User),
		friends: make(map[domain.UserID][]domain.UserID),
		convs:   make(map[domain.ConversationID]*conversation),
	}
}

func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// Befriend links a and b in both contact lists.
func (s *Store) Befriend(a, b domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.friends[a], b) {
		s.friends[a] = append(s.friends[a], b)
	}
	if !slices.Contains(s.friends[b], a) {
		s.friends[b] = append(s.friends[b], a)
	}
}

// CreateConversation registers a conversation with a fixed id.
func (s *Store) CreateConversation(id domain.ConversationID, participants ...domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[id] = newConversation(id, participants)
}

// FailNext makes the next write return err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func newConversation(id domain.ConversationID, participants []domain.UserID) *conversation {
	return &conversation{
		id:           id,
		participants: slices.Clone(participants),
		unread:       make(map[domain.UserID]int),
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) Profile(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		if !s.AutoProvision || id == "" {
			return nil, core.ErrNotFound
		}
		u = &domain.User{ID: id}
		s.users[id] = u
	}
	cp := *u
	return &cp, nil
}

func (s *Store) Contacts(_ context.Context, id domain.UserID) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.friends[id]), nil
}

func (s *Store) IsParticipant(_ context.Context, id domain.UserID, conv domain.ConversationID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conv]
	return ok && slices.Contains(c.participants, id), nil
}

func (s *Store) Participants(_ context.Context, conv domain.ConversationID) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conv]
	if !ok {
		return nil, core.ErrNotFound
	}
	return slices.Clone(c.participants), nil
}

func (s *Store) IncrementUnread(_ context.Context, conv domain.ConversationID, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conv]
	if !ok {
		return core.ErrNotFound
	}
	c.unread[id]++
	return nil
}

func (s *Store) ResetUnread(_ context.Context, conv domain.ConversationID, id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conv]
	if !ok {
		return core.ErrNotFound
	}
	c.unread[id] = 0
	return nil
}

func (s *Store) SetLastMessage(_ context.Context, conv domain.ConversationID, msg domain.MessageID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conv]
	if !ok {
		return core.ErrNotFound
	}
	c.lastMessage, c.lastAt = msg, at
	return nil
}

func (s *Store) FindOrCreate(_ context.Context, a, b domain.UserID) (domain.ConversationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOrCreateLocked(a, b), nil
}

func (s *Store) findOrCreateLocked(a, b domain.UserID) domain.ConversationID {
	for id, c := range s.convs {
		if len(c.participants) == 2 && slices.Contains(c.participants, a) && slices.Contains(c.participants, b) {
			return id
		}
	}
	id := domain.ConversationID(uuid.NewString())
	s.convs[id] = newConversation(id, []domain.UserID{a, b})
	return id
}

func (s *Store) Create(
	_ context.Context,
	conv domain.ConversationID,
	sender domain.UserID,
	content string,
	typ domain.MessageType,
) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	c, ok := s.convs[conv]
	if !ok {
		return nil, core.ErrNotFound
	}
	m := s.appendLocked(c, sender, content, typ, nil)
	cp := *m
	return &cp, nil
}

// appendLocked adds a message already read by its sender.
func (s *Store) appendLocked(c *conversation, sender domain.UserID, content string, typ domain.MessageType, info *domain.CallInfo) *domain.Message {
	m := &domain.Message{
		ID:             domain.MessageID(uuid.NewString()),
		ConversationID: c.id,
		Sender:         sender,
		Content:        content,
		Type:           typ,
		CallInfo:       info,
		ReadBy:         []domain.UserID{sender},
		CreatedAt:      s.now(),
	}
	c.messages = append(c.messages, m)
	return m
}

func (s *Store) MarkReadExceptSender(_ context.Context, conv domain.ConversationID, reader domain.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conv]
	if !ok {
		return 0, core.ErrNotFound
	}
	n := 0
	for _, m := range c.messages {
		if m.Sender == reader || slices.Contains(m.ReadBy, reader) {
			continue
		}
		m.ReadBy = append(m.ReadBy, reader)
		n++
	}
	return n, nil
}

// Save stores the record and adds the matching call message to the 1:1
// conversation of the two parties, read by the caller.
func (s *Store) Save(_ context.Context, rec domain.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.records = append(s.records, rec)

	c := s.convs[s.findOrCreateLocked(rec.Caller, rec.Callee)]
	m := s.appendLocked(c, rec.Caller, rec.Summary(), domain.MessageCall, &domain.CallInfo{
		Kind:            rec.Kind,
		DurationSeconds: rec.DurationSeconds,
		Status:          rec.Status,
	})
	c.lastMessage, c.lastAt = m.ID, m.CreatedAt
	return nil
}

func (s *Store) Unread(conv domain.ConversationID, id domain.UserID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.convs[conv]; ok {
		return c.unread[id]
	}
	return 0
}

func (s *Store) Messages(conv domain.ConversationID) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conv]
	if !ok {
		return nil
	}
	out := make([]domain.Message, 0, len(c.messages))
	for _, m := range c.messages {
		cp := *m
		cp.ReadBy = slices.Clone(m.ReadBy)
		out = append(out, cp)
	}
	return out
}

func (s *Store) LastMessage(conv domain.ConversationID) (domain.MessageID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[conv]
	if !ok || c.lastMessage == "" {
		return "", false
	}
	return c.lastMessage, true
}

func (s *Store) CallRecords() []domain.CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}
