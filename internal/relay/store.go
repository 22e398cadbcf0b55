package relay

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNoClient = errors.New("relay: nil redis client")

// StateStore keeps the latest state record per session.
type StateStore interface {
	Save(ctx context.Context, rec StateRecord) error
}

// Setter is the subset of *redis.Client the store writes through.
type Setter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore writes CBOR state records under "<prefix>:session:<id>".
type RedisStore struct {
	client Setter
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client Setter, prefix string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisStore) Key(session string) string {
	return s.prefix + ":session:" + session
}

func (s *RedisStore) Save(ctx context.Context, rec StateRecord) error {
	data, err := marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.Key(rec.Session), data, s.ttl).Err()
}
