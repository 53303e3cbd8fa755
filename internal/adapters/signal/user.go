package signal

import (
	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
)

func (ctl *SignalWSController) handleWhoAmI(sess core.MemberSession) {
	resp := struct {
		SID   core.SessionID  `json:"sid"`
		User  domain.Profile  `json:"user"`
		Rooms []domain.RoomID `json:"rooms"`
	}{
		SID:   sess.ID(),
		User:  sess.Meta().User.Profile(),
		Rooms: sess.JoinedRooms(),
	}
	ctl.sendEvent(sess, core.EventWhoAmI, resp)
}
