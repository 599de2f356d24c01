package store

import (
	"context"

	"go.ngs.io/sti-api/internal/domain"
)

// ObjectStore is the remote object storage the STI files live in.
type ObjectStore interface {
	// ListCommonPrefixes returns every common prefix directly under prefix,
	// following pagination to the end.
	ListCommonPrefixes(ctx context.Context, bucket, prefix, delimiter string) ([]string, error)

	// Download writes the object to localPath. A missing object yields an
	// error wrapping domain.ErrNotFound.
	Download(ctx context.Context, bucket, key, localPath string) error

	// Exists reports whether the object is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Decoder opens files in a binary scientific format. Implementations need
// not be safe for concurrent use.
type Decoder interface {
	Open(path string) (Handle, error)
}

// Handle is an open decoded file. Nothing is read into memory until
// Materialize.
type Handle interface {
	DataVarNames() []string

	// RenameVariable renames a data variable in the view returned by
	// Materialize. The file itself is not modified.
	RenameVariable(from, to string) error

	// Materialize reads every variable into memory. The result holds no
	// reference to the file.
	Materialize() (*domain.Dataset, error)

	Close() error
}
