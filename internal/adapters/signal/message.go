package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
)

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, sess core.MemberSession, data json.RawMessage) {
	const op = "send-message"
	var p struct {
		ConversationID domain.ConversationID `json:"conversationId"`
		Content        string                `json:"content"`
		Type           domain.MessageType    `json:"type"`
	}
	if !ctl.bind(sess, op, data, &p) {
		return
	}
	if _, err := ctl.Orch.Messages.Send(ctx, sess, p.ConversationID, p.Content, p.Type); err != nil {
		ctl.sendError(sess, op, err)
	}
}

func (ctl *SignalWSController) handleTyping(sess core.MemberSession, data json.RawMessage) {
	const op = "typing"
	var p struct {
		ConversationID domain.ConversationID `json:"conversationId"`
		IsTyping       bool                  `json:"isTyping"`
	}
	if !ctl.bind(sess, op, data, &p) {
		return
	}
	if err := ctl.Orch.Messages.Typing(sess, p.ConversationID, p.IsTyping); err != nil {
		ctl.sendError(sess, op, err)
	}
}

func (ctl *SignalWSController) handleMarkRead(ctx context.Context, sess core.MemberSession, data json.RawMessage) {
	const op = "mark-read"
	var p conversationPayload
	if !ctl.bind(sess, op, data, &p) {
		return
	}
	if _, err := ctl.Orch.Messages.MarkRead(ctx, sess, p.ConversationID); err != nil {
		ctl.sendError(sess, op, err)
	}
}
