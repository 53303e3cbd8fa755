package mongostore

import (
	"time"

	"github.com/dkeye/realm/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type userDoc struct {
	ID        primitive.ObjectID   `bson:"_id"`
	FirstName string               `bson:"firstName"`
	LastName  string               `bson:"lastName"`
	Avatar    string               `bson:"avatar,omitempty"`
	Friends   []primitive.ObjectID `bson:"friends,omitempty"`
}

type conversationDoc struct {
	ID            primitive.ObjectID   `bson:"_id"`
	Participants  []primitive.ObjectID `bson:"participants"`
	LastMessage   *primitive.ObjectID  `bson:"lastMessage,omitempty"`
	LastMessageAt time.Time            `bson:"lastMessageAt"`

	// UnreadCount is keyed by the participant's hex id.
	UnreadCount map[string]int `bson:"unreadCount"`
	CreatedAt   time.Time      `bson:"createdAt"`
	UpdatedAt   time.Time      `bson:"updatedAt"`
}

type readMarker struct {
	User   primitive.ObjectID `bson:"user"`
	ReadAt time.Time          `bson:"readAt"`
}

type callInfoDoc struct {
	Type     string `bson:"type"`
	Duration int    `bson:"duration"`
	Status   string `bson:"status"`
}

type messageDoc struct {
	ID             primitive.ObjectID `bson:"_id"`
	ConversationID primitive.ObjectID `bson:"conversation"`
	Sender         primitive.ObjectID `bson:"sender"`
	Content        string             `bson:"content"`
	MessageType    string             `bson:"messageType"`
	CallInfo       *callInfoDoc       `bson:"callInfo,omitempty"`
	ReadBy         []readMarker       `bson:"readBy"`
	IsDeleted      bool               `bson:"isDeleted"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

func (d *userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:        domain.UserID(d.ID.Hex()),
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Avatar:    d.Avatar,
	}
}

func (d *messageDoc) toDomain() *domain.Message {
	m := &domain.Message{
		ID:             domain.MessageID(d.ID.Hex()),
		ConversationID: domain.ConversationID(d.ConversationID.Hex()),
		Sender:         domain.UserID(d.Sender.Hex()),
		Content:        d.Content,
		Type:           domain.MessageType(d.MessageType),
		CreatedAt:      d.CreatedAt,
	}
	for _, r := range d.ReadBy {
		m.ReadBy = append(m.ReadBy, domain.UserID(r.User.Hex()))
	}
	if d.CallInfo != nil {
		m.CallInfo = &domain.CallInfo{
			Kind:            domain.CallKind(d.CallInfo.Type),
			DurationSeconds: d.CallInfo.Duration,
			Status:          domain.CallStatus(d.CallInfo.Status),
		}
	}
	return m
}

func hexIDs(ids []primitive.ObjectID) []domain.UserID {
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.UserID(id.Hex()))
	}
	return out
}
