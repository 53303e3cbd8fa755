package domain

import (
	"errors"
	"time"
)

const MaxMessageLen = 2000

var (
	ErrMessageEmpty   = errors.New("message content empty")
	ErrMessageTooLong = errors.New("message content too long")
	ErrMessageType    = errors.New("unknown message type")
)

type MessageID string

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
	MessageAudio MessageType = "audio"
	MessageVideo MessageType = "video"
	MessageCall  MessageType = "call"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageAudio, MessageVideo, MessageCall:
		return true
	}
	return false
}

type CallInfo struct {
	Kind            CallKind   `json:"type"`
	DurationSeconds int        `json:"duration"`
	Status          CallStatus `json:"status"`
}

// Message is the stored form; only the store assigns ID and CreatedAt.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Sender         UserID
	Content        string
	Type           MessageType
	CallInfo       *CallInfo
	ReadBy         []UserID
	CreatedAt      time.Time
}

// NormalizeMessage applies the defaults a client may omit and rejects
// content the stores would refuse anyway.
func NormalizeMessage(content string, typ MessageType) (MessageType, error) {
	if typ == "" {
		typ = MessageText
	}
	if !typ.Valid() {
		return "", ErrMessageType
	}
	if content == "" {
		return "", ErrMessageEmpty
	}
	if len([]rune(content)) > MaxMessageLen {
		return "", ErrMessageTooLong
	}
	return typ, nil
}

// FormattedMessage is the wire form fanned out to clients.
type FormattedMessage struct {
	ID             MessageID      `json:"id"`
	Content        string         `json:"content"`
	Type           MessageType    `json:"type"`
	Sender         Profile        `json:"sender"`
	CreatedAt      time.Time      `json:"createdAt"`
	ConversationID ConversationID `json:"conversationId"`
}

func FormatMessage(m *Message, sender Profile) *FormattedMessage {
	return &FormattedMessage{
		ID:             m.ID,
		Content:        m.Content,
		Type:           m.Type,
		Sender:         sender,
		CreatedAt:      m.CreatedAt,
		ConversationID: m.ConversationID,
	}
}
