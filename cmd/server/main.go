package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/realm/internal/adapters/http"
	"github.com/dkeye/realm/internal/adapters/auth"
	"github.com/dkeye/realm/internal/adapters/memory"
	"github.com/dkeye/realm/internal/adapters/mongostore"
	"github.com/dkeye/realm/internal/adapters/natsnotify"
	"github.com/dkeye/realm/internal/adapters/rediscache"
	"github.com/dkeye/realm/internal/app"
	"github.com/dkeye/realm/internal/app/orch"
	"github.com/dkeye/realm/internal/config"
	"github.com/dkeye/realm/internal/core"
)

type stores struct {
	directory     core.UserDirectory
	conversations core.ConversationStore
	messages      core.MessageStore
	records       core.CallRecordStore
	closers       []func(context.Context)
}

func (s *stores) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}
	switch cfg.Store {
	case config.StoreMongo:
		cli, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(ctx context.Context) { _ = cli.Disconnect(ctx) })
		st := mongostore.New(cli.Database(cfg.MongoDatabase))
		s.directory, s.conversations, s.messages, s.records = st, st, st, st
		log.Info().Str("db", cfg.MongoDatabase).Msg("using mongo store")
	default:
		st := memory.New()
		st.AutoProvision = true
		s.directory, s.conversations, s.messages, s.records = st, st, st, st
		log.Warn().Msg("using in-memory store, nothing survives a restart")
	}

	if cfg.RedisAddr != "" {
		rdb, err := rediscache.NewClient(ctx, rediscache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			s.close(ctx)
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) { _ = rdb.Close() })
		s.directory = rediscache.New(s.directory, rdb, cfg.ContactsTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("contact cache enabled")
	}
	return s, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stores")
	}
	defer st.close(context.Background())

	var notifier core.OfflineNotifier = core.NopNotifier{}
	if cfg.NatsURL != "" {
		nc, err := natsnotify.Connect(cfg.NatsURL, "realm")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer nc.Close()
		notifier = natsnotify.New(nc, cfg.NotifySubject)
		log.Info().Str("subject", cfg.NotifySubject).Msg("offline hints enabled")
	}

	policy, err := app.PolicyByName(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid backpressure policy")
	}

	o := orch.New(orch.Deps{
		Auth:           auth.NewVerifier(cfg.JWTSecret),
		Directory:      st.directory,
		Conversations:  st.conversations,
		Messages:       st.messages,
		Records:        st.records,
		Notifier:       notifier,
		Policy:         policy,
		RingTimeout:    cfg.RingTimeout,
		CleanupTimeout: cfg.CleanupTimeout,
	})

	r, err := router.SetupRouter(ctx, cfg, o)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up router")
	}
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("realm server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
