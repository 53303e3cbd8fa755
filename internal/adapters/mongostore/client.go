// Package mongostore implements the directory and stores on MongoDB,
// using the collections of the social app the gateway sits beside.
package mongostore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	MaxRetry    int
}

// Connect dials and pings the server, retrying a few times while it comes up.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 5
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < cfg.MaxRetry; i++ {
		cli, err = connect(ctx, opts)
		if err == nil {
			break
		}
		log.Warn().Err(err).Str("module", "adapters.mongo").Int("attempt", i+1).Msg("connect failed")
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "connect to mongo")
		case <-time.After(time.Second / 2):
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongo")
	}
	return cli, nil
}

func connect(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return cli, nil
}
