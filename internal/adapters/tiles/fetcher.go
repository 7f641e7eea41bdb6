// Package tiles fetches imagery tiles over HTTP and assembles viewport
// mosaics from them.
package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aitzol/tilescout/internal/core/ports"
	"github.com/aitzol/tilescout/internal/pkg/metrics"
)

const (
	userAgent    = "tilescout/1.0"
	tileCacheTTL = 900 // seconds
)

// Fetcher downloads tile bytes with a read-through cache in front of the
// provider. The provider is an unauthenticated raster source.
type Fetcher struct {
	client *http.Client
	cache  ports.CacheService
}

// NewFetcher creates a Fetcher. cache may be nil to fetch uncached.
func NewFetcher(cache ports.CacheService) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  cache,
	}
}

// Fetch returns the raw bytes for a tile URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	cacheKey := "tile:" + url
	if f.cache != nil {
		if data, err := f.cache.Get(ctx, cacheKey); err == nil && len(data) > 0 {
			metrics.CacheHits.WithLabelValues("tile").Inc()
			return data, nil
		}
		metrics.CacheMisses.WithLabelValues("tile").Inc()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build tile request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.TileFetchErrors.Inc()
		return nil, fmt.Errorf("fetch tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.TileFetchErrors.Inc()
		return nil, fmt.Errorf("fetch tile: provider returned %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		metrics.TileFetchErrors.Inc()
		return nil, fmt.Errorf("fetch tile: unexpected content type %s", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TileFetchErrors.Inc()
		return nil, fmt.Errorf("read tile body: %w", err)
	}
	metrics.TilesFetched.Inc()

	if f.cache != nil {
		_ = f.cache.Set(ctx, cacheKey, data, tileCacheTTL)
	}
	return data, nil
}
