package repo

import (
	"context"
	"fmt"

	"github.com/open-edge-platform/geti-persistence/binaryrepo"
	"github.com/open-edge-platform/geti-persistence/internal/errorx"
)

// BlobEntity is an entity whose payload lives in the binary object
// store; the document only carries a filename reference.
type BlobEntity interface {
	Entity
	BlobFilename() string
}

// BlobBackedRepository pairs a document collection with the binary
// object store holding the entities' payloads. Deletes remove the
// document first and the blob second, so a failed blob delete leaves an
// orphaned blob rather than a document pointing at missing bytes.
type BlobBackedRepository[T BlobEntity, C any] struct {
	*Repository[T, C]
	blobs binaryrepo.Store
}

// NewBlobBacked wraps the repository with the blob store its entities'
// payloads live in.
func NewBlobBacked[T BlobEntity, C any](r *Repository[T, C], blobs binaryrepo.Store) *BlobBackedRepository[T, C] {
	return &BlobBackedRepository[T, C]{Repository: r, blobs: blobs}
}

// DeleteByID deletes the entity's document and then its blob.
func (r *BlobBackedRepository[T, C]) DeleteByID(ctx context.Context, id ID) (bool, error) {
	entity, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	deleted, err := r.Repository.DeleteByID(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	if err := r.blobs.DeleteByFilename(ctx, entity.BlobFilename()); err != nil {
		return true, fmt.Errorf("document %s deleted but blob removal failed: %w", id.Hex(), err)
	}
	return true, nil
}

// DeleteAll removes every tenant-visible document and every blob under
// the owner's prefix. A filter cannot be applied to the blob store, so a
// filtered bulk delete is not supported; callers must delete matching
// entities one by one through DeleteByID.
func (r *BlobBackedRepository[T, C]) DeleteAll(ctx context.Context, opts ...QueryOption) (bool, error) {
	o := applyQueryOptions(opts)
	if o.extraFilter != nil {
		return false, fmt.Errorf("filtered bulk delete on blob-backed collection %s: %w",
			r.name, errorx.ErrNotImplemented)
	}
	deleted, err := r.Repository.DeleteAll(ctx)
	if err != nil {
		return deleted, err
	}
	if err := r.blobs.DeleteAll(ctx); err != nil {
		return deleted, fmt.Errorf("documents deleted but blob removal failed: %w", err)
	}
	return deleted, nil
}
