package binaryrepo

import (
	"bytes"
	"context"
	"io"
)

// Source is the data to store: either a path to an existing file or an
// in-memory stream with known length.
type Source struct {
	Path   string
	Reader io.Reader
	Size   int64
}

// FromFile sources the blob from a file on disk.
func FromFile(path string) Source {
	return Source{Path: path}
}

// FromBytes sources the blob from an in-memory buffer.
func FromBytes(data []byte) Source {
	return Source{Reader: bytes.NewReader(data), Size: int64(len(data))}
}

// FromReader sources the blob from a stream with known length.
func FromReader(r io.Reader, size int64) Source {
	return Source{Reader: r, Size: size}
}

type saveOptions struct {
	overwrite  bool
	makeUnique bool
}

// SaveOption adjusts Save behavior.
type SaveOption func(*saveOptions)

// Overwrite controls whether an existing blob with the same name is
// replaced (the default) or the save fails with an already-exists error.
func Overwrite(enabled bool) SaveOption {
	return func(o *saveOptions) { o.overwrite = enabled }
}

// MakeUnique sanitizes the filename and appends a fresh unique suffix
// before the extension, so the stored name never collides with a prior
// save of the same base name.
func MakeUnique() SaveOption {
	return func(o *saveOptions) { o.makeUnique = true }
}

func applySaveOptions(opts []SaveOption) saveOptions {
	o := saveOptions{overwrite: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store is the backend-independent contract for one owner's blobs of one
// object type. Both backends satisfy it identically except where noted.
type Store interface {
	// Save stores the blob and returns the name it was stored under,
	// which differs from filename only when MakeUnique is set.
	Save(ctx context.Context, filename string, src Source, opts ...SaveOption) (string, error)

	// Get returns the blob's bytes and size. It fails with a not-found
	// error when the blob does not exist; decoding the bytes into a
	// typed result is the caller's concern.
	Get(ctx context.Context, filename string) (io.ReadCloser, int64, error)

	// PathOrURL returns a filesystem path (local backend) or a
	// time-limited presigned URL (object-storage backend) under which
	// external tools can read the blob directly.
	PathOrURL(ctx context.Context, filename string) (string, error)

	// DeleteByFilename removes the blob. An empty filename is a logged
	// no-op and an already absent blob counts as success.
	DeleteByFilename(ctx context.Context, filename string) error

	// DeleteAll removes every blob under the owner's prefix.
	DeleteAll(ctx context.Context) error

	Exists(ctx context.Context, filename string) (bool, error)
	ObjectSize(ctx context.Context, filename string) (int64, error)
	// StorageSize returns the total size of all blobs under the owner's
	// prefix, recursing into nested keys.
	StorageSize(ctx context.Context) (int64, error)

	// SaveGroup copies every file under sourceDir, recursively, into the
	// owner's prefix; ExportGroup copies the owner's blob set out into
	// targetDir. Used for project import/export.
	SaveGroup(ctx context.Context, sourceDir string) error
	ExportGroup(ctx context.Context, targetDir string) error
}
