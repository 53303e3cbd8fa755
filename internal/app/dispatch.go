package app

import (
	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Dispatcher encodes events and queues them on connections, handing full
// queues to the backpressure Policy.
type Dispatcher struct {
	Policy Policy
}

func NewDispatcher(p Policy) *Dispatcher {
	return &Dispatcher{Policy: p}
}

// Send queues one event on a single connection.
func (d *Dispatcher) Send(ms core.MemberSession, typ string, data any) error {
	f, err := core.Encode(typ, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatch").Str("type", typ).Msg("encode")
		return err
	}
	if err := ms.Signal().TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "app.dispatch").Str("sid", string(ms.ID())).Str("type", typ).Msg("send dropped")
		d.dropped(nil, []core.MemberSession{ms})
		return err
	}
	return nil
}

func (d *Dispatcher) dropped(room core.RoomService, members []core.MemberSession) {
	if len(members) == 0 {
		return
	}
	metrics.FramesDropped.Add(float64(len(members)))
	if d == nil || d.Policy == nil {
		return
	}
	for _, ms := range members {
		switch d.Policy.OnBackPressure(room, ms) {
		case KickMember:
			log.Warn().Str("module", "app.dispatch").Str("sid", string(ms.ID())).Str("user", string(ms.Identity())).Msg("kicking slow connection")
			ms.Signal().Close()
		case DropFrame:
			log.Debug().Str("module", "app.dispatch").Str("sid", string(ms.ID())).Msg("frame dropped for lagging connection")
		}
	}
}
