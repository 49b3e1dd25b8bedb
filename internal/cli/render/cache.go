package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/trebuchet-org/treb-runner/internal/domain"
)

// CacheRenderer renders cache statistics
type CacheRenderer struct {
	out io.Writer
}

// NewCacheRenderer creates a new cache renderer
func NewCacheRenderer(out io.Writer) *CacheRenderer {
	return &CacheRenderer{out: out}
}

// RenderResults renders the result cache summary
func (r *CacheRenderer) RenderResults(stats domain.CacheStats) error {
	if !stats.Enabled {
		fmt.Fprintln(r.out, FormatWarning("Cache store unavailable, caching is disabled"))
		return nil
	}
	headerStyle.Fprintf(r.out, "🗄  Result cache: %d entries\n", stats.Entries)
	for _, key := range stats.Keys {
		labelStyle.Fprintf(r.out, "  %s\n", key)
	}
	return nil
}

// RenderImages renders the cached image ids
func (r *CacheRenderer) RenderImages(stats domain.ImageCacheStats) error {
	if !stats.Enabled {
		fmt.Fprintln(r.out, FormatWarning("Cache store unavailable, caching is disabled"))
		return nil
	}
	if len(stats.Images) == 0 {
		fmt.Fprintln(r.out, "No cached images")
		return nil
	}
	t := newTable()
	t.SetOutputMirror(r.out)
	t.AppendHeader(table.Row{"Tag", "Image ID", "Cached"})
	for _, img := range stats.Images {
		t.AppendRow(table.Row{img.Tag, img.ImageID, formatTime(img.CachedAt)})
	}
	t.Render()
	return nil
}
