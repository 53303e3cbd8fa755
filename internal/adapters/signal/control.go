package signal

import "github.com/dkeye/realm/internal/core"

func (ctl *SignalWSController) handlePing(sess core.MemberSession) {
	ctl.sendEvent(sess, core.EventPong, nil)
}
