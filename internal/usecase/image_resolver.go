package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/trebuchet-org/treb-runner/internal/domain"
	"github.com/trebuchet-org/treb-runner/internal/domain/config"
	"golang.org/x/sync/singleflight"
)

const imageComponent = "image_resolver"

// ImageResolver maps toolchain tags onto image ids, building them when needed.
// Resolutions of the same tag in flight at the same time share one build.
type ImageResolver struct {
	runtime  ContainerRuntime
	store    CacheStore
	reporter ErrorReporter
	log      *slog.Logger
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group
}

// NewImageResolver creates a new image resolver
func NewImageResolver(cfg *config.RuntimeConfig, runtime ContainerRuntime, store CacheStore, reporter ErrorReporter, log *slog.Logger) *ImageResolver {
	return &ImageResolver{
		runtime:  runtime,
		store:    store,
		reporter: reporter,
		log:      log.With("component", imageComponent),
		ttl:      cfg.Cache.ImageTTL,
		now:      time.Now,
	}
}

// Resolve returns the image id for tag. cached is false only when the image
// had to be built.
func (r *ImageResolver) Resolve(ctx context.Context, recipe domain.BuildRecipe, tag string) (cached bool, imageID string, err error) {
	// joined callers share the build, so it outlives the leader's ctx
	buildCtx := context.WithoutCancel(ctx)
	v, err, shared := r.group.Do(tag, func() (any, error) {
		return r.resolve(buildCtx, recipe, tag)
	})
	if err != nil {
		return false, "", err
	}
	res := v.(*domain.ImageResolution)
	if shared {
		r.log.Debug("joined in-flight resolution", "tag", tag)
	}
	return res.Cached, res.ImageID, nil
}

func (r *ImageResolver) resolve(ctx context.Context, recipe domain.BuildRecipe, tag string) (*domain.ImageResolution, error) {
	id, err := r.runtime.FindImage(ctx, tag)
	switch {
	case err == nil:
		r.remember(ctx, tag, id)
		return &domain.ImageResolution{Tag: tag, ImageID: id, Cached: true}, nil
	case !errors.Is(err, domain.ErrNotFound):
		r.reporter.Report(imageComponent, domain.KindRuntimeUnavailable, "failed to list images", err, map[string]any{"tag": tag})
		return nil, fmt.Errorf("failed to look up image %s: %w", tag, err)
	}

	var rec domain.ImageRecord
	if getRecord(ctx, r.store, r.log, imageKeyPrefix+tag, &rec) {
		return &domain.ImageResolution{Tag: tag, ImageID: rec.ImageID, Cached: true}, nil
	}

	r.log.Info("building image", "tag", tag, "dockerfile", recipe.Dockerfile, "context", recipe.ContextDir)
	start := r.now()
	id, err = r.runtime.BuildImage(ctx, recipe, tag)
	if err != nil {
		r.reporter.Report(imageComponent, domain.KindImageResolveFailed, "image build failed", err,
			map[string]any{"tag": tag, "dockerfile": recipe.Dockerfile})
		return nil, fmt.Errorf("failed to build image %s: %w", tag, err)
	}
	r.log.Info("built image", "tag", tag, "id", id, "duration", r.now().Sub(start))
	r.remember(ctx, tag, id)
	return &domain.ImageResolution{Tag: tag, ImageID: id, Cached: false}, nil
}

func (r *ImageResolver) remember(ctx context.Context, tag, id string) {
	putRecord(ctx, r.store, r.log, imageKeyPrefix+tag, domain.ImageRecord{Tag: tag, ImageID: id, CachedAt: r.now()}, r.ttl)
}

// Clear drops the cached id of tag, or of every tag when tag is empty
func (r *ImageResolver) Clear(ctx context.Context, tag string) (int, error) {
	if !r.store.Enabled() {
		return 0, nil
	}
	if tag != "" {
		if err := r.store.Delete(ctx, imageKeyPrefix+tag); err != nil {
			return 0, fmt.Errorf("failed to clear image cache: %w", err)
		}
		return 1, nil
	}
	keys, err := r.store.Keys(ctx, imageKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to list image cache: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := r.store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("failed to clear image cache: %w", err)
	}
	return len(keys), nil
}

// Stats lists the cached image ids
func (r *ImageResolver) Stats(ctx context.Context) domain.ImageCacheStats {
	stats := domain.ImageCacheStats{Enabled: r.store.Enabled(), Images: []domain.ImageRecord{}}
	if !stats.Enabled {
		return stats
	}
	keys, err := r.store.Keys(ctx, imageKeyPrefix+"*")
	if err != nil {
		r.log.Warn("failed to list image cache", "error", err)
		return stats
	}
	sort.Strings(keys)
	for _, key := range keys {
		var rec domain.ImageRecord
		if getRecord(ctx, r.store, r.log, key, &rec) {
			if rec.Tag == "" {
				rec.Tag = strings.TrimPrefix(key, imageKeyPrefix)
			}
			stats.Images = append(stats.Images, rec)
		}
	}
	return stats
}
