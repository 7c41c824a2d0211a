package binaryrepo

import (
	"github.com/open-edge-platform/geti-persistence/config"
)

// Factory builds Store instances for owners and object types, selecting
// the backend once from configuration. Construct one at startup and
// inject it wherever blobs are persisted; nothing here is process-global.
type Factory struct {
	cfg config.Storage
}

// NewFactory returns a factory bound to the storage configuration.
func NewFactory(cfg config.Storage) *Factory {
	return &Factory{cfg: cfg}
}

// Bucket returns the bucket name for the object type, honoring
// configured overrides.
func (f *Factory) Bucket(objectType ObjectType) string {
	if name, ok := f.cfg.Buckets[objectType.String()]; ok && name != "" {
		return name
	}
	return objectType.String()
}

// Store returns a Store for the owner's blobs of the given object type,
// backed by object storage or the local filesystem per configuration.
func (f *Factory) Store(objectType ObjectType, owner Owner) (Store, error) {
	if !f.cfg.ObjectStorage {
		return NewFSStore(f.cfg.Workdir, owner), nil
	}
	return NewS3Store(S3Options{
		Endpoint:        f.cfg.S3.Endpoint,
		Region:          f.cfg.S3.Region,
		AccessKeyID:     f.cfg.S3.AccessKeyID,
		SecretAccessKey: f.cfg.S3.SecretAccessKey,
		Bucket:          f.Bucket(objectType),
		BasePath:        f.cfg.BasePath,
	}, owner)
}
