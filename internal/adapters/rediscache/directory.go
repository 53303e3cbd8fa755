// Package rediscache puts a Redis read-through cache in front of a
// UserDirectory. Contact lists are read on every connect and disconnect.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultTTL = time.Minute

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewClient(ctx context.Context, c Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

// CachedDirectory serves Contacts from Redis and Profile from the wrapped
// directory. Redis failures degrade to the wrapped directory.
type CachedDirectory struct {
	Next core.UserDirectory
	rdb  redis.Cmdable
	ttl  time.Duration
}

var _ core.UserDirectory = (*CachedDirectory)(nil)

func New(next core.UserDirectory, rdb redis.Cmdable, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedDirectory{Next: next, rdb: rdb, ttl: ttl}
}

// contacts key: realm:contacts:<user>
func contactsKey(id domain.UserID) string { return "realm:contacts:" + string(id) }

func (d *CachedDirectory) Profile(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return d.Next.Profile(ctx, id)
}

func (d *CachedDirectory) Contacts(ctx context.Context, id domain.UserID) ([]domain.UserID, error) {
	key := contactsKey(id)
	raw, err := d.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var ids []domain.UserID
		if jerr := json.Unmarshal(raw, &ids); jerr == nil {
			return ids, nil
		}
		log.Warn().Str("module", "adapters.redis").Str("key", key).Msg("corrupt cache entry")
	case errors.Is(err, redis.Nil):
	default:
		log.Warn().Err(err).Str("module", "adapters.redis").Str("key", key).Msg("cache read failed")
	}

	ids, err := d.Next.Contacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(ids); jerr == nil {
		if serr := d.rdb.Set(ctx, key, b, d.ttl).Err(); serr != nil {
			log.Warn().Err(serr).Str("module", "adapters.redis").Str("key", key).Msg("cache write failed")
		}
	}
	return ids, nil
}
