// Package natsnotify publishes offline-delivery hints for a push service.
package natsnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const DefaultSubject = "realm.notify"

type hint struct {
	UserID  domain.UserID            `json:"userId"`
	Message *domain.FormattedMessage `json:"message"`
}

// Notifier publishes one core NATS message per hint on <subject>.<user>.
// Nothing is persisted; a push service that is not listening misses it.
type Notifier struct {
	nc      *nats.Conn
	subject string
}

var _ core.OfflineNotifier = (*Notifier)(nil)

func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "adapters.nats").Msg("disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("module", "adapters.nats").Str("url", c.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func New(nc *nats.Conn, subject string) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{nc: nc, subject: subject}
}

func (n *Notifier) subjectFor(id domain.UserID) string {
	return n.subject + "." + string(id)
}

func buildMsg(subject string, id domain.UserID, m *domain.FormattedMessage) (*nats.Msg, error) {
	data, err := json.Marshal(hint{UserID: id, Message: m})
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Realm-Event", core.EventMessageNotification)
	msg.Header.Set("Realm-Conversation", string(m.ConversationID))
	return msg, nil
}

func (n *Notifier) NotifyOffline(ctx context.Context, id domain.UserID, m *domain.FormattedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := buildMsg(n.subjectFor(id), id, m)
	if err != nil {
		return fmt.Errorf("encode hint: %w", err)
	}
	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}
