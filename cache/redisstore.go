// RedisStore is the opt-in cold-tier backend for deployments that run
// more than one dashboard process sharing one cache, adapted from
// the job queue's connection-setup pattern (URL parse, ping-on-connect,
// key-prefix convention) to plain key/value artifact storage instead of
// list-based queueing.
package cache

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/devlens/enginemetrics/errkind"
)

// RedisStore backs the cold tier with a shared Redis instance.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	URL       string
	KeyPrefix string // defaults to "enginemetrics:cache:"
}

// NewRedisStore connects to Redis and verifies the connection with a
// ping before returning.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errkind.New(errkind.ConfigError, "cache.NewRedisStore", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errkind.New(errkind.UpstreamTransient, "cache.NewRedisStore", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "enginemetrics:cache:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(key string) string { return s.prefix + key }

// Load fetches the artifact bytes for key.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errkind.New(errkind.UpstreamTransient, "cache.RedisStore.Load", err)
	}
	return data, true, nil
}

// Save writes the artifact bytes for key, with no expiry (cold-tier
// lifetime is managed by the collection job, not Redis TTL).
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.key(key), data, 0).Err(); err != nil {
		return errkind.New(errkind.UpstreamTransient, "cache.RedisStore.Save", err)
	}
	return nil
}

// Delete removes the artifact for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errkind.New(errkind.UpstreamTransient, "cache.RedisStore.Delete", err)
	}
	return nil
}

// Keys lists every key under this store's prefix.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	pattern := s.prefix + "*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(s.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, errkind.New(errkind.UpstreamTransient, "cache.RedisStore.Keys", err)
	}
	return keys, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ ArtifactStore = (*RedisStore)(nil)
