package orch

import (
	"context"

	"github.com/dkeye/realm/internal/app"
	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinConversation admits the session to a conversation room after the
// store confirms the identity is a participant.
func (o *Orchestrator) JoinConversation(ctx context.Context, sess core.MemberSession, conv domain.ConversationID) error {
	const op = "join-room"
	if conv == "" {
		return &app.Error{Kind: app.KindBadRequest, Op: op, Err: app.ErrBadRequest}
	}
	ok, err := o.Conversations.IsParticipant(ctx, sess.Identity(), conv)
	if err != nil {
		return &app.Error{Kind: app.KindPersistence, Op: op, Err: err}
	}
	if !ok {
		return &app.Error{Kind: app.KindMembership, Op: op, Err: app.ErrNotParticipant}
	}
	room := domain.ConversationRoom(conv)
	o.Rooms.Join(room, sess)
	log.Info().Str("module", "orch").Str("sid", string(sess.ID())).Str("room", string(room)).Msg("joined conversation")
	return nil
}

// LeaveConversation is a no-op for rooms the session never joined.
func (o *Orchestrator) LeaveConversation(sess core.MemberSession, conv domain.ConversationID) {
	room := domain.ConversationRoom(conv)
	if !sess.InRoom(room) {
		return
	}
	o.Rooms.Leave(room, sess)
	log.Info().Str("module", "orch").Str("sid", string(sess.ID())).Str("room", string(room)).Msg("left conversation")
}

// Kick closes the live connection of id, if any, as on logout. Teardown
// runs from the connection's own read loop.
func (o *Orchestrator) Kick(id domain.UserID) bool {
	sess, ok := o.Registry.Lookup(id)
	if !ok {
		return false
	}
	sess.Signal().Close()
	return true
}
