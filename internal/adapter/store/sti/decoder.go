// Package sti retrieves STI NetCDF files from object storage, keeps a
// validated local copy of each run/step and decodes it into memory.
package sti

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.ngs.io/sti-api/internal/adapter/store"
	"go.ngs.io/sti-api/internal/domain"
	"go.ngs.io/sti-api/internal/logging"
	"go.ngs.io/sti-api/internal/observability"
)

// Validity is the result of probing a local file.
type Validity int

const (
	// Absent means no file exists at the path.
	Absent Validity = iota
	// Invalid means a file exists but does not decode.
	Invalid
	// Valid means the file exists and opens through the decoder.
	Valid
)

func (v Validity) String() string {
	switch v {
	case Absent:
		return "absent"
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	default:
		return fmt.Sprintf("Validity(%d)", int(v))
	}
}

// SerialDecoder funnels every use of a non-thread-safe decoder through one
// process-wide mutex. Share a single instance between the local cache and
// the loader.
type SerialDecoder struct {
	mu      sync.Mutex
	inner   store.Decoder
	metrics *observability.Metrics
}

// NewSerialDecoder wraps inner.
func NewSerialDecoder(inner store.Decoder, metrics *observability.Metrics) *SerialDecoder {
	return &SerialDecoder{inner: inner, metrics: metrics}
}

// Probe reports whether path holds a file that opens through the decoder.
// For Invalid the error says why.
func (d *SerialDecoder) Probe(path string) (Validity, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Absent, nil
		}
		return Invalid, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	h, err := d.inner.Open(path)
	if err != nil {
		return Invalid, err
	}
	if err := h.Close(); err != nil {
		return Invalid, err
	}
	return Valid, nil
}

// Load opens path, exposes its index variable as canonical and reads
// everything into memory. The decode lock is held for the whole operation,
// including close.
func (d *SerialDecoder) Load(path, canonical string) (*domain.Dataset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	defer func() { d.metrics.DecodeDuration.Observe(time.Since(start).Seconds()) }()

	logging.Info().Str("path", path).Msg("Opening dataset")
	h, err := d.inner.Open(path)
	if err != nil {
		return nil, asDecodeError(err)
	}
	defer func() { _ = h.Close() }()

	name, err := domain.PickDataVar(h, canonical)
	if err != nil {
		return nil, err
	}
	if name != canonical {
		logging.Info().Str("from", name).Str("to", canonical).Msg("Renaming variable")
		if err := h.RenameVariable(name, canonical); err != nil {
			return nil, asDecodeError(err)
		}
	}

	logging.Info().Str("path", path).Msg("Starting eager load")
	ds, err := h.Materialize()
	if err != nil {
		return nil, asDecodeError(err)
	}
	if !ds.HasVar(canonical) {
		return nil, fmt.Errorf("%w: variable %q missing after load of %s", domain.ErrDecode, canonical, path)
	}
	logging.Info().Str("path", path).Msg("Finished eager load")
	return ds, nil
}

func asDecodeError(err error) error {
	if errors.Is(err, domain.ErrDecode) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrDecode, err)
}
