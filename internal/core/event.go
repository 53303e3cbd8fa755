package core

import (
	"encoding/json"
	"fmt"
)

// Outbound event types.
const (
	EventOnlineUsers         = "online-users"
	EventNewMessage          = "new-message"
	EventMessageNotification = "message-notification"
	EventUserTyping          = "user-typing"
	EventMessagesRead        = "messages-read"
	EventUserStatusChange    = "user-status-change"
	EventIncomingCall        = "incoming-call"
	EventCallInitiated       = "call-initiated"
	EventCallAccepted        = "call-accepted"
	EventCallRejected        = "call-rejected"
	EventCallEnded           = "call-ended"
	EventCallMissed          = "call-missed"
	EventICECandidate        = "ice-candidate"
	EventSessionReplaced     = "session-replaced"
	EventPong                = "pong"
	EventWhoAmI              = "whoami"
	EventError               = "error"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func Encode(typ string, data any) (Frame, error) {
	env := Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		env.Data = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return b, nil
}

func Decode(f []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing event type")
	}
	return env, nil
}
