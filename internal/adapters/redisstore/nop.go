package redisstore

import (
	"context"
	"time"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// NopStore is a disabled cache: every read misses and writes are dropped
type NopStore struct{}

func (NopStore) Enabled() bool { return false }

func (NopStore) Get(context.Context, string) ([]byte, error) { return nil, domain.ErrCacheMiss }

func (NopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NopStore) Delete(context.Context, ...string) error { return nil }

func (NopStore) Keys(context.Context, string) ([]string, error) { return nil, nil }

var _ usecase.CacheStore = NopStore{}
