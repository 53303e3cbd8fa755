package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/realm/internal/domain"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/ports.go -package=mocks

// ErrNotFound is returned by stores and the directory for absent records.
var ErrNotFound = errors.New("not found")

// The ports below are the durable-state collaborators of the gateway.
// Every call may block on I/O; callers must not hold registry or room
// locks across them.

type AuthVerifier interface {
	Verify(ctx context.Context, token string) (domain.UserID, error)
}

type UserDirectory interface {
	Profile(ctx context.Context, id domain.UserID) (*domain.User, error)
	Contacts(ctx context.Context, id domain.UserID) ([]domain.UserID, error)
}

type ConversationStore interface {
	IsParticipant(ctx context.Context, id domain.UserID, conv domain.ConversationID) (bool, error)
	Participants(ctx context.Context, conv domain.ConversationID) ([]domain.UserID, error)
	IncrementUnread(ctx context.Context, conv domain.ConversationID, id domain.UserID) error
	ResetUnread(ctx context.Context, conv domain.ConversationID, id domain.UserID) error
	SetLastMessage(ctx context.Context, conv domain.ConversationID, msg domain.MessageID, at time.Time) error
	FindOrCreate(ctx context.Context, a, b domain.UserID) (domain.ConversationID, error)
}

type MessageStore interface {
	Create(ctx context.Context, conv domain.ConversationID, sender domain.UserID, content string, typ domain.MessageType) (*domain.Message, error)
	// MarkReadExceptSender returns how many messages gained a read marker.
	MarkReadExceptSender(ctx context.Context, conv domain.ConversationID, reader domain.UserID) (int, error)
}

type CallRecordStore interface {
	Save(ctx context.Context, rec domain.CallRecord) error
}

// OfflineNotifier hands a hint to an out-of-process push service for
// participants that hold no connection at all.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, id domain.UserID, msg *domain.FormattedMessage) error
}

type NopNotifier struct{}

func (NopNotifier) NotifyOffline(context.Context, domain.UserID, *domain.FormattedMessage) error {
	return nil
}
