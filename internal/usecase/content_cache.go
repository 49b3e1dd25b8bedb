package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
)

// ContentCache stores execution results keyed by a fingerprint of the
// project sources. Entries are immutable until they expire or are cleared.
type ContentCache struct {
	store  CacheStore
	layout ProjectLayoutLoader
	log    *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewContentCache creates a new content cache
func NewContentCache(cfg *config.RuntimeConfig, store CacheStore, layout ProjectLayoutLoader, log *slog.Logger) *ContentCache {
	return &ContentCache{
		store:  store,
		layout: layout,
		log:    log.With("component", "content_cache"),
		ttl:    cfg.Cache.ResultTTL,
		now:    time.Now,
	}
}

// Key computes the cache key of a project and invocation
func (c *ContentCache) Key(projectPath string, params domain.InvocationParams) (string, error) {
	layout, err := c.layout.Load(projectPath)
	if err != nil {
		return "", fmt.Errorf("failed to load project layout: %w", err)
	}
	hash, err := Fingerprint(projectPath, layout, params)
	if err != nil {
		return "", err
	}
	return ResultKeyPrefix + hash, nil
}

// Get returns the stored result payload
func (c *ContentCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	entry, ok := c.Entry(ctx, key)
	if !ok {
		return nil, false
	}
	return entry.Result, true
}

// Entry returns the full entry including image ids
func (c *ContentCache) Entry(ctx context.Context, key string) (*domain.CacheEntry, bool) {
	var entry domain.CacheEntry
	if !getRecord(ctx, c.store, c.log, key, &entry) {
		return nil, false
	}
	c.log.Debug("cache hit", "key", key)
	return &entry, true
}

// Put stores a result, replacing any previous entry under key
func (c *ContentCache) Put(ctx context.Context, key string, result any, imageIDs map[domain.Toolchain]string) error {
	if !c.store.Enabled() {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	entry := domain.CacheEntry{ImageIDs: imageIDs, Result: payload, StoredAt: c.now()}
	putRecord(ctx, c.store, c.log, key, entry, c.ttl)
	return nil
}

// Clear deletes every entry under prefix. An empty prefix means the result prefix.
func (c *ContentCache) Clear(ctx context.Context, prefix string) (int, error) {
	if !c.store.Enabled() {
		return 0, nil
	}
	if prefix == "" {
		prefix = ResultKeyPrefix
	}
	keys, err := c.store.Keys(ctx, prefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("failed to delete cache keys: %w", err)
	}
	c.log.Info("cleared cache", "prefix", prefix, "count", len(keys))
	return len(keys), nil
}

// Stats summarizes the result entries
func (c *ContentCache) Stats(ctx context.Context) domain.CacheStats {
	stats := domain.CacheStats{Enabled: c.store.Enabled(), Prefix: ResultKeyPrefix}
	if !stats.Enabled {
		return stats
	}
	keys, err := c.store.Keys(ctx, ResultKeyPrefix+"*")
	if err != nil {
		c.log.Warn("failed to list cache keys", "error", err)
		return stats
	}
	sort.Strings(keys)
	stats.Entries = len(keys)
	stats.Keys = keys
	return stats
}
