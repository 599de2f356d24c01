package sti

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"go.ngs.io/sti-api/internal/adapter/store"
	"go.ngs.io/sti-api/internal/domain"
	"go.ngs.io/sti-api/internal/logging"
	"go.ngs.io/sti-api/internal/observability"
)

const defaultLockRetry = 100 * time.Millisecond

// Entry locates a run/step on local disk.
type Entry struct {
	Path     string // Published, validated file.
	LockPath string // Cross-process lock guarding Path.
}

// CacheConfig configures a LocalCache.
type CacheConfig struct {
	Dir         string
	MinSize     int64         // Downloads smaller than this are rejected.
	LockTimeout time.Duration // Max wait for the per-entry lock.
	LockRetry   time.Duration // Lock polling interval. Defaults to 100ms.
}

// LocalCache keeps one validated local copy per run/step. At most one
// writer, across goroutines and processes, downloads a given entry; the
// file at Entry.Path is either absent or complete.
type LocalCache struct {
	store   store.ObjectStore
	keys    domain.KeyBuilder
	decoder *SerialDecoder
	cfg     CacheConfig
	metrics *observability.Metrics
}

// NewLocalCache creates a local cache. decoder must be the instance shared
// with the Loader.
func NewLocalCache(s store.ObjectStore, keys domain.KeyBuilder, decoder *SerialDecoder, cfg CacheConfig, metrics *observability.Metrics) *LocalCache {
	if cfg.LockRetry <= 0 {
		cfg.LockRetry = defaultLockRetry
	}
	return &LocalCache{store: s, keys: keys, decoder: decoder, cfg: cfg, metrics: metrics}
}

// Entry returns the local paths for run/step.
func (c *LocalCache) Entry(run, step string) (Entry, error) {
	name, err := c.keys.LocalFileName(run, step)
	if err != nil {
		return Entry{}, err
	}
	path := filepath.Join(c.cfg.Dir, name)
	return Entry{Path: path, LockPath: path + ".lock"}, nil
}

// EnsureLocalCopy returns the path of a validated local copy of run/step,
// downloading it if needed. A cached file that no longer decodes is evicted
// and fetched again.
func (c *LocalCache) EnsureLocalCopy(ctx context.Context, run, step string) (string, error) {
	key, err := c.keys.BuildObjectKey(run, step)
	if err != nil {
		return "", err
	}
	entry, err := c.Entry(run, step)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.cfg.Dir, 0o750); err != nil {
		return "", fmt.Errorf("create cache dir %s: %w", c.cfg.Dir, err)
	}

	unlock, err := c.lock(ctx, entry)
	if err != nil {
		return "", err
	}
	defer unlock()

	validity, reason := c.decoder.Probe(entry.Path)
	c.metrics.CacheProbes.WithLabelValues(validity.String()).Inc()
	switch validity {
	case Valid:
		logging.Info().Str("path", entry.Path).Msg("Cache hit, file is valid")
		return entry.Path, nil
	case Invalid:
		logging.Warn().Err(reason).Str("path", entry.Path).Msg("Corrupt cache file, removing to download again")
		if err := os.Remove(entry.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("evict %s: %w", entry.Path, err)
		}
	case Absent:
	}

	if err := c.download(ctx, key, entry.Path); err != nil {
		logging.Error().Err(err).Str("key", key).Msg("Download or validation failed")
		return "", err
	}
	return entry.Path, nil
}

// download fetches key into a unique temporary file beside path, validates
// it and atomically renames it into place. Must be called with the entry
// lock held.
func (c *LocalCache) download(ctx context.Context, key, path string) error {
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmp)
		}
	}()

	start := time.Now()
	logging.Info().Str("key", key).Str("tmp", tmp).Msg("Starting download")

	if err := c.store.Download(ctx, c.keys.Bucket, key, tmp); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.metrics.Downloads.WithLabelValues("not_found").Inc()
			return err
		}
		c.metrics.Downloads.WithLabelValues("error").Inc()
		return fmt.Errorf("download %s: %w", key, err)
	}

	if err := c.validate(tmp); err != nil {
		c.metrics.Downloads.WithLabelValues("integrity").Inc()
		return err
	}

	// The store may not have flushed; the rename must not outlive the data.
	if err := syncPath(tmp); err != nil {
		c.metrics.Downloads.WithLabelValues("error").Inc()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		c.metrics.Downloads.WithLabelValues("error").Inc()
		return fmt.Errorf("publish %s: %w", path, err)
	}
	published = true
	if err := syncPath(filepath.Dir(path)); err != nil {
		logging.Warn().Err(err).Str("dir", filepath.Dir(path)).Msg("Failed to sync cache directory")
	}

	c.metrics.Downloads.WithLabelValues("success").Inc()
	c.metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	logging.Info().Str("path", path).Dur("elapsed", time.Since(start)).Msg("Download validated and published")
	return nil
}

// syncPath flushes a file or directory to stable storage.
func syncPath(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is built by the local cache
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *LocalCache) validate(tmp string) error {
	info, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("%w: stat downloaded file: %v", domain.ErrIntegrity, err)
	}
	if info.Size() < c.cfg.MinSize {
		return fmt.Errorf("%w: downloaded file is too small (%d < %d bytes)", domain.ErrIntegrity, info.Size(), c.cfg.MinSize)
	}
	if validity, reason := c.decoder.Probe(tmp); validity != Valid {
		return fmt.Errorf("%w: downloaded file does not decode: %v", domain.ErrIntegrity, reason)
	}
	return nil
}

// Evict removes the published file for run/step under the entry lock.
func (c *LocalCache) Evict(ctx context.Context, run, step string) error {
	entry, err := c.Entry(run, step)
	if err != nil {
		return err
	}
	unlock, err := c.lock(ctx, entry)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(entry.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("evict %s: %w", entry.Path, err)
	}
	logging.Warn().Str("path", entry.Path).Msg("Evicted cache file")
	return nil
}

// lock takes the entry's file lock, waiting at most LockTimeout.
func (c *LocalCache) lock(ctx context.Context, entry Entry) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, c.cfg.LockTimeout)
	defer cancel()

	fl := flock.New(entry.LockPath)
	start := time.Now()
	locked, err := fl.TryLockContext(lctx, c.cfg.LockRetry)
	c.metrics.LockWait.Observe(time.Since(start).Seconds())

	if !locked {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("lock %s: %w", entry.LockPath, err)
		}
		return nil, fmt.Errorf("%w: %s after %s", domain.ErrLockTimeout, entry.LockPath, c.cfg.LockTimeout)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			logging.Warn().Err(err).Str("lock", entry.LockPath).Msg("Failed to release cache lock")
		}
	}, nil
}
