// Package archive persists raw outlook archives and serves them back so
// finalized days are not downloaded twice.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	"github.com/couchcryptid/spc-outlook-etl/internal/observability"
)

// ErrNotFound is returned by Store.Get when no archive is stored for a key.
var ErrNotFound = errors.New("archive not in store")

// Store persists raw archives by key.
type Store interface {
	Get(ctx context.Context, key domain.ArchiveKey) (domain.Archive, error)
	Put(ctx context.Context, a domain.Archive) error
}

// Fetcher retrieves an archive from upstream.
type Fetcher interface {
	Fetch(ctx context.Context, key domain.ArchiveKey) (domain.Archive, error)
}

// CachingFetcher serves finalized days from the store and writes every
// upstream download back to it. Today's archive is always refetched since
// cycles keep being issued through the day.
type CachingFetcher struct {
	upstream Fetcher
	store    Store
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewCachingFetcher wraps an upstream fetcher with a store.
func NewCachingFetcher(upstream Fetcher, store Store, logger *slog.Logger, metrics *observability.Metrics) *CachingFetcher {
	return &CachingFetcher{upstream: upstream, store: store, logger: logger, metrics: metrics}
}

// Fetch implements pipeline.Fetcher.
func (f *CachingFetcher) Fetch(ctx context.Context, key domain.ArchiveKey) (domain.Archive, error) {
	if key.Final() {
		a, err := f.store.Get(ctx, key)
		switch {
		case err == nil:
			f.metrics.ArchiveCache.WithLabelValues("hit").Inc()
			f.logger.Debug("archive served from store", "date", key.DateString(), "day", int(key.Day), "type", string(key.Type))
			return a, nil
		case errors.Is(err, ErrNotFound):
			f.metrics.ArchiveCache.WithLabelValues("miss").Inc()
		default:
			f.metrics.ArchiveCache.WithLabelValues("store_error").Inc()
			f.logger.Warn("archive store read failed, fetching upstream", "date", key.DateString(), "error", err)
		}
	}

	a, err := f.upstream.Fetch(ctx, key)
	if err != nil {
		return domain.Archive{}, err
	}
	if err := f.store.Put(ctx, a); err != nil {
		return domain.Archive{}, fmt.Errorf("persist archive %s: %w", key, err)
	}
	return a, nil
}
