package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/realm/internal/app"
	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/dkeye/realm/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultCleanupTimeout = 5 * time.Second

type replacedEvent struct {
	Reason string `json:"reason"`
}

// Orchestrator drives a connection through handshake, activation and
// teardown and routes it to the components that own shared state.
type Orchestrator struct {
	Auth          core.AuthVerifier
	Directory     core.UserDirectory
	Conversations core.ConversationStore

	Registry *app.Registry
	Rooms    *app.RoomManager
	Presence *app.Presence
	Messages *app.MessageRelay
	Calls    *app.CallSignaling
	Out      *app.Dispatcher

	CleanupTimeout time.Duration
}

type Deps struct {
	Auth          core.AuthVerifier
	Directory     core.UserDirectory
	Conversations core.ConversationStore
	Messages      core.MessageStore
	Records       core.CallRecordStore
	Notifier      core.OfflineNotifier
	Policy        app.Policy

	RingTimeout    time.Duration
	CleanupTimeout time.Duration
}

// New wires the in-memory components around the given collaborators.
func New(d Deps) *Orchestrator {
	if d.Policy == nil {
		d.Policy = app.KickPolicy{}
	}
	if d.Notifier == nil {
		d.Notifier = core.NopNotifier{}
	}
	if d.CleanupTimeout <= 0 {
		d.CleanupTimeout = defaultCleanupTimeout
	}
	out := app.NewDispatcher(d.Policy)
	reg := app.NewRegistry()
	rooms := app.NewRoomManager(out)
	calls := app.NewCallSignaling(reg, d.Records, out, d.RingTimeout)
	calls.CleanupTimeout = d.CleanupTimeout

	return &Orchestrator{
		Auth:          d.Auth,
		Directory:     d.Directory,
		Conversations: d.Conversations,
		Registry:      reg,
		Rooms:         rooms,
		Presence:      &app.Presence{Directory: d.Directory, Registry: reg, Out: out},
		Messages: &app.MessageRelay{
			Conversations: d.Conversations,
			Messages:      d.Messages,
			Notifier:      d.Notifier,
			Registry:      reg,
			Rooms:         rooms,
			Out:           out,
		},
		Calls:          calls,
		Out:            out,
		CleanupTimeout: d.CleanupTimeout,
	}
}

// Authenticate resolves a handshake token to a user. It touches no shared
// state, so a rejected handshake leaves nothing behind.
func (o *Orchestrator) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	const op = "handshake"
	if token == "" {
		return nil, &app.Error{Kind: app.KindAuth, Op: op, Err: app.ErrAuth}
	}
	id, err := o.Auth.Verify(ctx, token)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Msg("token rejected")
		return nil, &app.Error{Kind: app.KindAuth, Op: op, Err: app.ErrAuth}
	}

	user, err := o.Directory.Profile(ctx, id)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, core.ErrNotFound):
		return nil, &app.Error{Kind: app.KindAuth, Op: op, Err: app.ErrAuth}
	default:
		// The token is valid; a directory outage only costs the display name.
		log.Warn().Err(err).Str("module", "orch").Str("user", string(id)).Msg("profile lookup failed")
		return domain.NewUser(id)
	}
}

// Connect activates an authenticated session and returns the identities
// online at that moment, the new one included.
func (o *Orchestrator) Connect(ctx context.Context, sess core.MemberSession) []domain.UserID {
	id := sess.Identity()
	prev, replaced := o.Registry.Register(sess)
	if replaced {
		metrics.SessionsReplaced.Inc()
		log.Info().Str("module", "orch").Str("user", string(id)).Str("old_sid", string(prev.ID())).Str("sid", string(sess.ID())).Msg("session replaced")
		_ = o.Out.Send(prev, core.EventSessionReplaced, replacedEvent{Reason: "connected elsewhere"})
		prev.Signal().Close()
	}

	o.Rooms.Join(domain.PersonalRoom(id), sess)
	if !replaced {
		o.Presence.Announce(ctx, id, true)
	}
	return o.Registry.List()
}

// Disconnect tears a session down. Each step runs even if an earlier one
// panics, and only the session still registered for its identity goes
// offline or loses its calls.
func (o *Orchestrator) Disconnect(sess core.MemberSession) {
	timeout := o.CleanupTimeout
	if timeout <= 0 {
		timeout = defaultCleanupTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	id := sess.Identity()
	logger := log.With().Str("module", "orch").Str("user", string(id)).Str("sid", string(sess.ID())).Logger()

	guard(logger, "leave rooms", func() { o.Rooms.LeaveAll(sess) })

	var current bool
	guard(logger, "unregister", func() { current = o.Registry.Unregister(id, sess.ID()) })
	if !current {
		logger.Info().Msg("superseded session closed")
		return
	}
	// A reconnect may register between the steps below; from then on the
	// identity and its calls belong to the new connection.
	guard(logger, "announce offline", func() {
		if o.reconnected(logger, id) {
			return
		}
		o.Presence.Announce(ctx, id, false)
	})
	guard(logger, "end calls", func() {
		if o.reconnected(logger, id) {
			return
		}
		if n := o.Calls.OnDisconnect(ctx, id); n > 0 {
			logger.Info().Int("calls", n).Msg("calls ended")
		}
	})
	logger.Info().Msg("disconnected")
}

func (o *Orchestrator) reconnected(logger zerolog.Logger, id domain.UserID) bool {
	if !o.Registry.IsOnline(id) {
		return false
	}
	logger.Info().Msg("identity reconnected during teardown")
	return true
}

func guard(logger zerolog.Logger, step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("step", step).Msg("cleanup step failed")
		}
	}()
	fn()
}
