// Package redisstore implements the shared cache store on Redis
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// Store is a Redis-backed usecase.CacheStore
type Store struct {
	client *redis.Client
}

// NewStore wraps an existing client
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// ProvideCacheStore connects to the configured Redis. An empty URL or an
// unreachable server yields a disabled store so callers run uncached.
func ProvideCacheStore(cfg *config.RuntimeConfig, log *slog.Logger) usecase.CacheStore {
	if cfg.Cache.RedisURL == "" {
		log.Info("cache disabled, no redis url configured")
		return NopStore{}
	}
	opts, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		log.Warn("cache disabled, invalid redis url", "error", err)
		return NopStore{}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("cache disabled, redis unreachable", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return NopStore{}
	}
	log.Debug("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return NewStore(client)
}

func (s *Store) Enabled() bool { return true }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys returns the keys matching a glob pattern. It scans instead of using
// KEYS so large databases are not blocked.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return keys, nil
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

var _ usecase.CacheStore = (*Store)(nil)
