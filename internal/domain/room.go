package domain

import "strings"

type (
	RoomID         string
	ConversationID string
)

const (
	conversationRoomPrefix = "conversation:"
	personalRoomPrefix     = "user:"
)

type Room struct {
	ID RoomID
}

// ConversationRoom is the broadcast group for one conversation.
func ConversationRoom(id ConversationID) RoomID {
	return RoomID(conversationRoomPrefix + string(id))
}

// PersonalRoom is the identity-scoped channel used for direct notifications.
func PersonalRoom(id UserID) RoomID {
	return RoomID(personalRoomPrefix + string(id))
}

func (id RoomID) Conversation() (ConversationID, bool) {
	s := string(id)
	if !strings.HasPrefix(s, conversationRoomPrefix) {
		return "", false
	}
	return ConversationID(strings.TrimPrefix(s, conversationRoomPrefix)), true
}

func (id RoomID) IsPersonal() bool {
	return strings.HasPrefix(string(id), personalRoomPrefix)
}
