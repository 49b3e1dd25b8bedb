package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// Key layout of the shared cache store
const (
	ResultKeyPrefix       = "kv-compiled:"
	imageKeyPrefix        = "images:"
	sandboxStatePrefix    = "containers:"
	sandboxSnapshotPrefix = "containers:snapshot:"
	nodeStatePrefix       = "node:"
	nodeSnapshotPrefix    = "node:snapshot:"
)

// putRecord stores v as JSON. Store failures are logged and absorbed.
func putRecord(ctx context.Context, store CacheStore, log *slog.Logger, key string, v any, ttl time.Duration) {
	if !store.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("failed to encode cache record", "key", key, "error", err)
		return
	}
	if err := store.Set(ctx, key, data, ttl); err != nil {
		log.Warn("failed to write cache record", "key", key, "error", err)
	}
}

// getRecord loads a JSON record. Misses and store failures both return false.
func getRecord(ctx context.Context, store CacheStore, log *slog.Logger, key string, v any) bool {
	if !store.Enabled() {
		return false
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			log.Warn("failed to read cache record", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn("discarding undecodable cache record", "key", key, "error", err)
		return false
	}
	return true
}

func deleteRecords(ctx context.Context, store CacheStore, log *slog.Logger, keys ...string) {
	if !store.Enabled() || len(keys) == 0 {
		return
	}
	if err := store.Delete(ctx, keys...); err != nil {
		log.Warn("failed to delete cache records", "keys", keys, "error", err)
	}
}
