package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/firms-detection-etl/internal/domain"
	"github.com/couchcryptid/firms-detection-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads the raw detection table behind a source locator.
// Implementations wrap their failures in domain.ErrDataFetch.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (domain.RawBatch, error)
}

// BuilderConfig tunes result memoization and the empty-collection policy.
type BuilderConfig struct {
	// CacheSize bounds the number of memoized sources. Zero disables caching.
	CacheSize int
	// CacheTTL expires memoized results. Zero keeps them until evicted.
	CacheTTL time.Duration
	// FallbackCentroid is returned for empty collections when non-nil.
	FallbackCentroid *orb.Point
	// Clock drives cache expiry. Nil uses the real clock.
	Clock clockwork.Clock
}

// Builder runs the fetch, normalize, filter, geometry and centroid stages for
// a source. Successful results are memoized per source and concurrent builds
// of the same source share one execution.
type Builder struct {
	fetcher  Fetcher
	cache    *resultCache
	flights  singleflight.Group
	fallback *orb.Point
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewBuilder creates a Builder reading through fetcher.
func NewBuilder(fetcher Fetcher, cfg BuilderConfig, logger *slog.Logger, metrics *observability.Metrics) *Builder {
	return &Builder{
		fetcher:  fetcher,
		cache:    newResultCache(cfg.CacheSize, cfg.CacheTTL, cfg.Clock),
		fallback: cfg.FallbackCentroid,
		logger:   logger,
		metrics:  metrics,
	}
}

// Build returns the filtered detection collection for source and its
// representative location. Failures are returned as produced by the failing
// stage and are never memoized.
func (b *Builder) Build(ctx context.Context, source string) (domain.Result, error) {
	if res, ok := b.cache.get(source); ok {
		b.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return res, nil
	}

	v, err, shared := b.flights.Do(source, func() (any, error) {
		// A flight that finished between the lookup above and Do may have filled the cache.
		if res, ok := b.cache.get(source); ok {
			return res, nil
		}
		res, err := b.build(ctx, source)
		if err != nil {
			return domain.Result{}, err
		}
		b.cache.put(source, res)
		return res, nil
	})

	if shared {
		b.metrics.CacheLookups.WithLabelValues("shared").Inc()
	} else {
		b.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}
	if err != nil {
		b.metrics.BuildErrors.WithLabelValues(domain.ErrorKind(err)).Inc()
		return domain.Result{}, err
	}
	return v.(domain.Result), nil
}

// Invalidate drops the memoized result for source, if any.
func (b *Builder) Invalidate(source string) {
	if b.cache.invalidate(source) {
		b.logger.Debug("cache entry invalidated", "source_id", sourceID(source))
	}
}

// Purge drops every memoized result.
func (b *Builder) Purge() {
	b.cache.purge()
	b.logger.Debug("cache purged")
}

// Cached returns the number of memoized sources.
func (b *Builder) Cached() int {
	return b.cache.size()
}

func (b *Builder) build(ctx context.Context, source string) (domain.Result, error) {
	start := time.Now()
	id := sourceID(source)

	batch, err := b.fetcher.Fetch(ctx, source)
	if err != nil {
		if !errors.Is(err, domain.ErrDataFetch) {
			err = fmt.Errorf("%w: %w", domain.ErrDataFetch, err)
		}
		return domain.Result{}, err
	}

	normalized, err := domain.NormalizeTemporal(batch)
	if err != nil {
		return domain.Result{}, err
	}

	kept, err := domain.FilterHighConfidence(normalized)
	if err != nil {
		return domain.Result{}, err
	}
	b.metrics.Detections.WithLabelValues("kept").Add(float64(len(kept)))
	b.metrics.Detections.WithLabelValues("dropped").Add(float64(len(normalized) - len(kept)))

	collection, err := domain.BuildCollection(kept)
	if err != nil {
		return domain.Result{}, err
	}

	res := domain.Result{Collection: collection}
	res.Centroid, err = domain.CalculateCentroid(collection)
	if errors.Is(err, domain.ErrEmptyDataset) && b.fallback != nil {
		res.Centroid = fallbackCentroid(*b.fallback)
		res.CentroidFallback = true
		err = nil
	}
	if err != nil {
		return domain.Result{}, err
	}

	b.logger.Info("build complete",
		"source_id", id,
		"rows", batch.Len(),
		"kept", collection.Len(),
		"centroid_lat", res.Centroid.Lat,
		"centroid_lon", res.Centroid.Lon,
		"fallback", res.CentroidFallback,
		"duration", time.Since(start),
	)
	return res, nil
}

func fallbackCentroid(p orb.Point) domain.Centroid {
	projected := domain.EqualArea.FromWGS84(p)
	return domain.Centroid{
		Lat:            p[1],
		Lon:            p[0],
		Bound:          orb.Bound{Min: p, Max: p},
		ProjectedBound: orb.Bound{Min: projected, Max: projected},
	}
}

// sourceID is a short stable digest of a source locator. Locators can embed
// API keys, so logs carry the digest instead.
func sourceID(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:6])
}
