package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
)

type callPayload struct {
	CallID domain.CallID   `json:"callId"`
	Signal json.RawMessage `json:"signal,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

func (ctl *SignalWSController) handleCallInitiate(ctx context.Context, sess core.MemberSession, data json.RawMessage) {
	const op = "call-initiate"
	var p struct {
		RecipientID domain.UserID   `json:"recipientId"`
		CallType    domain.CallKind `json:"callType"`
		Signal      json.RawMessage `json:"signal,omitempty"`
	}
	if !ctl.bind(sess, op, data, &p) {
		return
	}
	id, err := ctl.Orch.Calls.Initiate(ctx, sess, p.RecipientID, p.CallType, p.Signal)
	if err != nil {
		ctl.sendError(sess, op, err)
		return
	}
	ctl.sendEvent(sess, core.EventCallInitiated, struct {
		CallID domain.CallID `json:"callId"`
	}{id})
}

func (ctl *SignalWSController) handleCallAccept(ctx context.Context, sess core.MemberSession, data json.RawMessage) {
	const op = "call-accept"
	var p callPayload
	if !ctl.bind(sess, op, data, &p) {
		return
	}
	if err := ctl.Orch.Calls.Accept(ctx, sess, p.CallID, p.Signal); err != nil {
		ctl.sendError(sess, op, err)
	}
}

func (ctl *SignalWSController) handleCallReject(ctx context.Context, sess core.MemberSession, data json.RawMessage) {
	const op = "call-reject"
	var p callPayload
	if !ctl.bind(sess, op, data, &p) {
		return
	}
	if err := ctl.Orch.Calls.Reject(ctx, sess, p.CallID, p.Reason); err != nil {
		ctl.sendError(sess, op, err)
	}
}

func (ctl *SignalWSController) handleCallEnd(ctx context.Context, sess core.MemberSession, data json.RawMessage) {
	const op = "call-end"
	var p callPayload
	if !ctl.bind(sess, op, data, &p) {
		return
	}
	if err := ctl.Orch.Calls.End(ctx, sess, p.CallID); err != nil {
		ctl.sendError(sess, op, err)
	}
}

func (ctl *SignalWSController) handleCallTimeout(ctx context.Context, sess core.MemberSession, data json.RawMessage) {
	const op = "call-timeout"
	var p callPayload
	if !ctl.bind(sess, op, data, &p) {
		return
	}
	if err := ctl.Orch.Calls.Timeout(ctx, sess, p.CallID); err != nil {
		ctl.sendError(sess, op, err)
	}
}

// handleCandidate relays an ICE candidate. Nothing is reported back when
// the recipient is gone.
func (ctl *SignalWSController) handleCandidate(sess core.MemberSession, data json.RawMessage) {
	var p struct {
		RecipientID domain.UserID   `json:"recipientId"`
		Candidate   json.RawMessage `json:"candidate"`
	}
	if !ctl.bind(sess, "ice-candidate", data, &p) {
		return
	}
	ctl.Orch.Calls.RelayICE(sess, p.RecipientID, p.Candidate)
}
