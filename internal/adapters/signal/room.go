package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
)

type conversationPayload struct {
	ConversationID domain.ConversationID `json:"conversationId"`
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, sess core.MemberSession, data json.RawMessage) {
	const op = "join-room"
	var p conversationPayload
	if !ctl.bind(sess, op, data, &p) {
		return
	}
	if err := ctl.Orch.JoinConversation(ctx, sess, p.ConversationID); err != nil {
		ctl.sendError(sess, op, err)
	}
}

// handleLeave leaves one conversation room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sess core.MemberSession, data json.RawMessage) {
	var p conversationPayload
	if !ctl.bind(sess, "leave-room", data, &p) {
		return
	}
	ctl.Orch.LeaveConversation(sess, p.ConversationID)
}
