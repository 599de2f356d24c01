package sti

import (
	"context"
	"slices"

	"go.ngs.io/sti-api/internal/adapter/cache"
	"go.ngs.io/sti-api/internal/adapter/store"
	"go.ngs.io/sti-api/internal/domain"
	"go.ngs.io/sti-api/internal/logging"
	"go.ngs.io/sti-api/internal/observability"
)

const (
	delimiter      = "/"
	runsKey        = "runs"
	stepsKeyPrefix = "steps:"
)

// Catalog discovers runs and steps by listing key prefixes, and probes
// object existence. Listings are cached.
type Catalog struct {
	store   store.ObjectStore
	keys    domain.KeyBuilder
	cache   *cache.TTL[[]string]
	metrics *observability.Metrics
}

// NewCatalog creates a catalog. metadata caches listing results; concurrent
// misses for the same listing share one remote call.
func NewCatalog(s store.ObjectStore, keys domain.KeyBuilder, metadata *cache.TTL[[]string], metrics *observability.Metrics) *Catalog {
	return &Catalog{store: s, keys: keys, cache: metadata, metrics: metrics}
}

// ListRuns returns the distinct run identifiers, sorted ascending. Prefixes
// that do not carry a run identifier are ignored.
func (c *Catalog) ListRuns(ctx context.Context) ([]string, error) {
	runs, err := c.cache.GetOrCompute(ctx, runsKey, func(ctx context.Context) ([]string, error) {
		return c.list(ctx, "runs", c.keys.RunsPrefix(), domain.ParseRunPrefix)
	})
	return slices.Clone(runs), err
}

// ListSteps returns the distinct normalized steps of run, sorted ascending.
// An unknown run yields an empty list.
func (c *Catalog) ListSteps(ctx context.Context, run string) ([]string, error) {
	steps, err := c.cache.GetOrCompute(ctx, stepsKeyPrefix+run, func(ctx context.Context) ([]string, error) {
		return c.list(ctx, "steps", c.keys.StepsPrefix(run), domain.ParseStepPrefix)
	})
	return slices.Clone(steps), err
}

func (c *Catalog) list(ctx context.Context, kind, prefix string, parse func(string) (string, bool)) ([]string, error) {
	prefixes, err := c.store.ListCommonPrefixes(ctx, c.keys.Bucket, prefix, delimiter)
	if err != nil {
		c.metrics.CatalogListings.WithLabelValues(kind, "error").Inc()
		logging.Error().Err(err).Str("prefix", prefix).Msgf("Failed to list %s", kind)
		return nil, err
	}
	c.metrics.CatalogListings.WithLabelValues(kind, "success").Inc()

	seen := make(map[string]struct{}, len(prefixes))
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		id, ok := parse(p)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// ObjectExists reports whether key exists. Transport failures are logged
// and reported as false.
func (c *Catalog) ObjectExists(ctx context.Context, key string) bool {
	ok, err := c.store.Exists(ctx, c.keys.Bucket, key)
	if err != nil {
		c.metrics.ExistenceChecks.WithLabelValues("error").Inc()
		logging.Error().Err(err).Str("bucket", c.keys.Bucket).Str("key", key).Msg("Existence check failed")
		return false
	}
	if ok {
		c.metrics.ExistenceChecks.WithLabelValues("exists").Inc()
	} else {
		c.metrics.ExistenceChecks.WithLabelValues("missing").Inc()
	}
	return ok
}
