package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/realm/internal/app"
	"github.com/dkeye/realm/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type errorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
}

func (ctl *SignalWSController) writePump(ctx context.Context, sess core.MemberSession, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sess.ID())).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("ping failed")
				return
			}
		}
	}
}

// readPump owns the connection's teardown: whatever ends the loop, the
// session is disconnected exactly once from here.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess core.MemberSession, c *WsSignalConn) {
	sid := sess.ID()
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
		cancel()
		ctl.Orch.Disconnect(sess)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, sess, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sess core.MemberSession, data []byte) {
	env, err := core.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("bad frame")
		ctl.sendError(sess, "decode", &app.Error{Kind: app.KindBadRequest, Err: app.ErrBadRequest})
		return
	}

	switch env.Type {
	case "join-room", "join-conversation":
		ctl.handleJoin(ctx, sess, env.Data)
	case "leave-room", "leave-conversation":
		ctl.handleLeave(sess, env.Data)
	case "send-message":
		ctl.handleSendMessage(ctx, sess, env.Data)
	case "typing":
		ctl.handleTyping(sess, env.Data)
	case "mark-read":
		ctl.handleMarkRead(ctx, sess, env.Data)
	case "call-initiate", "call-user":
		ctl.handleCallInitiate(ctx, sess, env.Data)
	case "call-accept", "accept-call":
		ctl.handleCallAccept(ctx, sess, env.Data)
	case "call-reject", "reject-call":
		ctl.handleCallReject(ctx, sess, env.Data)
	case "call-end", "end-call":
		ctl.handleCallEnd(ctx, sess, env.Data)
	case "call-timeout":
		ctl.handleCallTimeout(ctx, sess, env.Data)
	case "ice-candidate":
		ctl.handleCandidate(sess, env.Data)
	case "ping":
		ctl.handlePing(sess)
	case "whoami":
		ctl.handleWhoAmI(sess)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

// bind decodes the event payload, answering the sender on failure.
func (ctl *SignalWSController) bind(sess core.MemberSession, op string, data json.RawMessage, v any) bool {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("op", op).Msg("bad payload")
		ctl.sendError(sess, op, &app.Error{Kind: app.KindBadRequest, Op: op, Err: app.ErrBadRequest})
		return false
	}
	return true
}

func (ctl *SignalWSController) sendEvent(sess core.MemberSession, typ string, data any) {
	_ = ctl.Orch.Out.Send(sess, typ, data)
}

// sendError reports err to the acting connection only.
func (ctl *SignalWSController) sendError(sess core.MemberSession, op string, err error) {
	kind := app.KindOf(err)
	ev := log.Debug()
	if kind == app.KindInternal || kind == app.KindPersistence {
		ev = log.Error()
	}
	ev.Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Str("op", op).Str("code", kind.Code()).Msg("request failed")

	ctl.sendEvent(sess, core.EventError, errorEvent{
		Code:    kind.Code(),
		Message: app.PublicMessage(err),
		Op:      op,
	})
}
