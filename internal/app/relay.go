package app

import (
	"context"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/dkeye/realm/internal/metrics"
	"github.com/rs/zerolog/log"
)

type typingEvent struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
	UserName       string                `json:"userName"`
	IsTyping       bool                  `json:"isTyping"`
}

type readEvent struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	ReadBy         domain.UserID         `json:"readBy"`
}

// MessageRelay persists chat messages and fans them out.
//
// For one message the order is fixed: the store write, then the unread
// counters, then the room broadcast, then direct notifications. A client
// that sees the broadcast can always fetch the message from the store.
type MessageRelay struct {
	Conversations core.ConversationStore
	Messages      core.MessageStore
	Notifier      core.OfflineNotifier
	Registry      *Registry
	Rooms         *RoomManager
	Out           *Dispatcher
}

func (r *MessageRelay) Send(
	ctx context.Context,
	sess core.MemberSession,
	conv domain.ConversationID,
	content string,
	typ domain.MessageType,
) (*domain.FormattedMessage, error) {
	const op = "send-message"
	sender := sess.Meta().User
	logger := log.With().Str("module", "app.relay").Str("user", string(sender.ID)).Str("conversation", string(conv)).Logger()

	typ, err := domain.NormalizeMessage(content, typ)
	if err != nil {
		return nil, newError(KindBadRequest, op, err)
	}

	ok, err := r.Conversations.IsParticipant(ctx, sender.ID, conv)
	if err != nil {
		return nil, persistenceError(op, err)
	}
	if !ok {
		return nil, newError(KindMembership, op, ErrNotParticipant)
	}

	participants, err := r.Conversations.Participants(ctx, conv)
	if err != nil {
		return nil, persistenceError(op, err)
	}

	msg, err := r.Messages.Create(ctx, conv, sender.ID, content, typ)
	if err != nil {
		logger.Error().Err(err).Msg("persist message")
		return nil, persistenceError(op, err)
	}

	// Participants already looking at the conversation see the message live
	// and do not need an unread bump or a notification.
	room := domain.ConversationRoom(conv)
	var away []domain.UserID
	for _, p := range participants {
		if p == sender.ID || r.Rooms.HasIdentity(room, p) {
			continue
		}
		away = append(away, p)
	}

	for _, p := range away {
		if err := r.Conversations.IncrementUnread(ctx, conv, p); err != nil {
			logger.Warn().Err(err).Str("participant", string(p)).Msg("increment unread")
		}
	}
	if err := r.Conversations.SetLastMessage(ctx, conv, msg.ID, msg.CreatedAt); err != nil {
		logger.Warn().Err(err).Msg("set last message")
	}

	formatted := domain.FormatMessage(msg, sender.Profile())
	res := r.Rooms.Broadcast(room, core.EventNewMessage, formatted, "")

	notified := 0
	for _, p := range away {
		if r.Registry.IsOnline(p) {
			notified += r.Rooms.Broadcast(domain.PersonalRoom(p), core.EventMessageNotification, formatted, "").SendTo
			continue
		}
		if r.Notifier == nil {
			continue
		}
		if err := r.Notifier.NotifyOffline(ctx, p, formatted); err != nil {
			logger.Warn().Err(err).Str("participant", string(p)).Msg("offline hint")
		}
	}

	metrics.MessagesRelayed.WithLabelValues(string(typ)).Inc()
	logger.Info().Str("message", string(msg.ID)).Int("room_recipients", res.SendTo).Int("notified", notified).Msg("message relayed")
	return formatted, nil
}

// MarkRead is idempotent: messages already read by the reader are left alone.
func (r *MessageRelay) MarkRead(ctx context.Context, sess core.MemberSession, conv domain.ConversationID) (int, error) {
	const op = "mark-read"
	reader := sess.Identity()

	ok, err := r.Conversations.IsParticipant(ctx, reader, conv)
	if err != nil {
		return 0, persistenceError(op, err)
	}
	if !ok {
		return 0, newError(KindMembership, op, ErrNotParticipant)
	}

	n, err := r.Messages.MarkReadExceptSender(ctx, conv, reader)
	if err != nil {
		return 0, persistenceError(op, err)
	}
	if err := r.Conversations.ResetUnread(ctx, conv, reader); err != nil {
		return n, persistenceError(op, err)
	}

	r.Rooms.Broadcast(domain.ConversationRoom(conv), core.EventMessagesRead, readEvent{ConversationID: conv, ReadBy: reader}, sess.ID())
	log.Debug().Str("module", "app.relay").Str("user", string(reader)).Str("conversation", string(conv)).Int("marked", n).Msg("marked read")
	return n, nil
}

// Typing is relayed only from connections that joined the conversation room.
func (r *MessageRelay) Typing(sess core.MemberSession, conv domain.ConversationID, isTyping bool) error {
	room := domain.ConversationRoom(conv)
	if !sess.InRoom(room) {
		return newError(KindMembership, "typing", ErrNotInRoom)
	}
	user := sess.Meta().User
	r.Rooms.Broadcast(room, core.EventUserTyping, typingEvent{
		ConversationID: conv,
		UserID:         user.ID,
		UserName:       user.Name(),
		IsTyping:       isTyping,
	}, sess.ID())
	return nil
}
