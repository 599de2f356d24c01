package domain

import "errors"

// Error kinds surfaced by the STI core. Callers classify with errors.Is; the
// HTTP layer maps each kind to a status code.
var (
	// ErrFormat reports a run or step value that cannot be normalized.
	ErrFormat = errors.New("invalid format")

	// ErrNotFound reports a remote object that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity reports a downloaded file that failed size or decode validation.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrLockTimeout reports that the cache file lock was not acquired in time.
	ErrLockTimeout = errors.New("cache lock timeout")

	// ErrAmbiguousVariable reports a dataset with no recognizable index variable.
	ErrAmbiguousVariable = errors.New("ambiguous data variable")

	// ErrDecode reports a file rejected by the NetCDF decoder.
	ErrDecode = errors.New("decode failed")

	// ErrRange reports an invalid bounding box or an out-of-grid point.
	ErrRange = errors.New("invalid range")
)
