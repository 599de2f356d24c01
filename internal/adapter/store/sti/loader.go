package sti

import (
	"context"
	"errors"

	"go.ngs.io/sti-api/internal/domain"
	"go.ngs.io/sti-api/internal/logging"
	"go.ngs.io/sti-api/internal/observability"
)

// Loader turns a run/step into an in-memory dataset whose index variable is
// always named Canonical.
type Loader struct {
	cache     *LocalCache
	decoder   *SerialDecoder
	canonical string
	refetches int
	metrics   *observability.Metrics
}

// NewLoader creates a loader. A cached file that fails to decode at load
// time, after passing validation, is evicted and fetched again up to
// refetches times.
func NewLoader(cache *LocalCache, decoder *SerialDecoder, canonical string, refetches int, metrics *observability.Metrics) *Loader {
	return &Loader{cache: cache, decoder: decoder, canonical: canonical, refetches: refetches, metrics: metrics}
}

// Canonical returns the name the index variable is exposed under.
func (l *Loader) Canonical() string {
	return l.canonical
}

// LoadDataset ensures a local copy of run/step and decodes it. The returned
// dataset is owned by the caller and holds no file handles.
func (l *Loader) LoadDataset(ctx context.Context, run, step string) (*domain.Dataset, error) {
	for attempt := 0; ; attempt++ {
		path, err := l.cache.EnsureLocalCopy(ctx, run, step)
		if err != nil {
			l.metrics.DatasetLoads.WithLabelValues("error").Inc()
			return nil, err
		}

		ds, err := l.decoder.Load(path, l.canonical)
		if err == nil {
			l.metrics.DatasetLoads.WithLabelValues("success").Inc()
			return ds, nil
		}

		if !errors.Is(err, domain.ErrDecode) || attempt >= l.refetches {
			l.metrics.DatasetLoads.WithLabelValues("error").Inc()
			logging.Error().Err(err).Str("path", path).Msg("Failed to open or load dataset")
			return nil, err
		}

		logging.Warn().Err(err).Str("path", path).Int("attempt", attempt+1).Msg("Cached file failed to decode, fetching again")
		l.metrics.LateRefetches.Inc()
		if err := l.cache.Evict(ctx, run, step); err != nil {
			l.metrics.DatasetLoads.WithLabelValues("error").Inc()
			return nil, err
		}
	}
}
