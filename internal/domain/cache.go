package domain

import (
	"encoding/json"
	"time"
)

// InvocationParams are the non-file inputs folded into a content fingerprint
type InvocationParams struct {
	Script  string `json:"script"`
	ForkURL string `json:"fork_url"`
}

// CacheEntry is the value stored under a content fingerprint
type CacheEntry struct {
	ImageIDs map[Toolchain]string `json:"image_ids"`
	Result   json.RawMessage      `json:"result"`
	StoredAt time.Time            `json:"stored_at"`
}

// CacheStats summarizes a key prefix
type CacheStats struct {
	Enabled bool     `json:"cache_enabled"`
	Prefix  string   `json:"prefix"`
	Entries int      `json:"total_entries"`
	Keys    []string `json:"keys,omitempty"`
}

// ImageRecord is stored under images:<tag>
type ImageRecord struct {
	Tag      string    `json:"tag"`
	ImageID  string    `json:"image_id"`
	CachedAt time.Time `json:"cached_at"`
}

// ImageCacheStats summarizes cached image ids
type ImageCacheStats struct {
	Enabled bool          `json:"cache_enabled"`
	Images  []ImageRecord `json:"cached_images"`
}
