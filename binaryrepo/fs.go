package binaryrepo

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/open-edge-platform/geti-persistence/internal/errorx"
	"github.com/open-edge-platform/geti-persistence/internal/log"
)

const fsStorageRoot = "storage/binaryrepo"

// FSStore implements Store on the local filesystem under
// <workdir>/storage/binaryrepo/<owner path>/.
type FSStore struct {
	root   string
	owner  Owner
	logger zerolog.Logger
}

// NewFSStore returns a filesystem-backed store for the owner, rooted at
// the given working directory.
func NewFSStore(workdir string, owner Owner) *FSStore {
	return &FSStore{
		root:   workdir,
		owner:  owner,
		logger: log.For("binaryrepo.fs"),
	}
}

// ownerDir is the absolute directory holding the owner's blobs.
func (s *FSStore) ownerDir() string {
	return filepath.Join(s.root, fsStorageRoot, s.owner.localPath())
}

func (s *FSStore) blobPath(filename string) string {
	return filepath.Join(s.ownerDir(), filename)
}

// Save stores the blob under the owner's directory and returns the
// stored name.
func (s *FSStore) Save(ctx context.Context, filename string, src Source, opts ...SaveOption) (string, error) {
	o := applySaveOptions(opts)
	if o.makeUnique {
		filename = uniqueFilename(filename)
	}
	target := s.blobPath(filename)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	reader := src.Reader
	if src.Path != "" {
		f, err := os.Open(src.Path)
		if err != nil {
			return "", fmt.Errorf("failed to open source file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	// O_EXCL makes the conflict check atomic under concurrent saves of
	// the same name.
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !o.overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	out, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", errorx.AlreadyExistsf("blob %q", filename)
		}
		return "", fmt.Errorf("failed to create blob %q: %w", filename, err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to write blob %q: %w", filename, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close blob %q: %w", filename, err)
	}
	return filename, nil
}

// Get opens the blob for reading and returns its size.
func (s *FSStore) Get(ctx context.Context, filename string) (io.ReadCloser, int64, error) {
	info, err := os.Stat(s.blobPath(filename))
	if os.IsNotExist(err) {
		return nil, 0, errorx.NotFoundf("blob %q", filename)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat blob %q: %w", filename, err)
	}
	f, err := os.Open(s.blobPath(filename))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open blob %q: %w", filename, err)
	}
	return f, info.Size(), nil
}

// PathOrURL returns the blob's filesystem path.
func (s *FSStore) PathOrURL(ctx context.Context, filename string) (string, error) {
	p := s.blobPath(filename)
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return "", errorx.NotFoundf("blob %q", filename)
	} else if err != nil {
		return "", fmt.Errorf("failed to stat blob %q: %w", filename, err)
	}
	return p, nil
}

// DeleteByFilename removes the blob; an empty name is a logged no-op and
// a missing blob counts as success.
func (s *FSStore) DeleteByFilename(ctx context.Context, filename string) error {
	if filename == "" {
		s.logger.Debug().Msg("skipping delete of empty filename")
		return nil
	}
	if err := os.Remove(s.blobPath(filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %q: %w", filename, err)
	}
	return nil
}

// DeleteAll removes the owner's directory and, when it becomes empty,
// the parent directory as well.
func (s *FSStore) DeleteAll(ctx context.Context) error {
	dir := s.ownerDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete blobs under %q: %w", dir, err)
	}
	// Best effort: drop the parent when nothing else lives in it.
	_ = os.Remove(filepath.Dir(dir))
	return nil
}

// Exists reports whether the blob exists.
func (s *FSStore) Exists(ctx context.Context, filename string) (bool, error) {
	_, err := os.Stat(s.blobPath(filename))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat blob %q: %w", filename, err)
	}
	return true, nil
}

// ObjectSize returns the blob's size in bytes.
func (s *FSStore) ObjectSize(ctx context.Context, filename string) (int64, error) {
	info, err := os.Stat(s.blobPath(filename))
	if os.IsNotExist(err) {
		return 0, errorx.NotFoundf("blob %q", filename)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat blob %q: %w", filename, err)
	}
	return info.Size(), nil
}

// StorageSize returns the total size of every blob under the owner's
// directory, recursing into nested directories.
func (s *FSStore) StorageSize(ctx context.Context) (int64, error) {
	var total int64
	err := filepath.WalkDir(s.ownerDir(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan storage size: %w", err)
	}
	return total, nil
}

// SaveGroup copies every file under sourceDir, recursively, into the
// owner's directory, preserving relative paths.
func (s *FSStore) SaveGroup(ctx context.Context, sourceDir string) error {
	return filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		_, err = s.Save(ctx, rel, FromFile(p))
		return err
	})
}

// ExportGroup copies the owner's blob set into targetDir, preserving
// relative paths.
func (s *FSStore) ExportGroup(ctx context.Context, targetDir string) error {
	dir := s.ownerDir()
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(targetDir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
