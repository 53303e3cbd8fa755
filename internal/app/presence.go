package app

import (
	"context"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/rs/zerolog/log"
)

type statusChange struct {
	UserID   domain.UserID `json:"userId"`
	IsOnline bool          `json:"isOnline"`
}

// Presence tells a user's online contacts when the user comes or goes.
// It is best-effort: directory failures are logged and swallowed.
type Presence struct {
	Directory core.UserDirectory
	Registry  *Registry
	Out       *Dispatcher
}

// Announce returns how many contacts were notified.
func (p *Presence) Announce(ctx context.Context, id domain.UserID, online bool) int {
	logger := log.With().Str("module", "app.presence").Str("user", string(id)).Bool("online", online).Logger()

	contacts, err := p.Directory.Contacts(ctx, id)
	if err != nil {
		logger.Warn().Err(err).Msg("contact lookup failed, skipping announce")
		return 0
	}

	ev := statusChange{UserID: id, IsOnline: online}
	sent := 0
	for _, c := range contacts {
		sess, ok := p.Registry.Lookup(c)
		if !ok {
			continue
		}
		if err := p.Out.Send(sess, core.EventUserStatusChange, ev); err == nil {
			sent++
		}
	}
	logger.Debug().Int("contacts", len(contacts)).Int("notified", sent).Msg("announced")
	return sent
}
