package binaryrepo

import (
	"path"
	"path/filepath"

	"github.com/open-edge-platform/geti-persistence/identity"
)

// Owner is the tenant-scoped identifier a set of blobs belongs to: a
// project, or a dataset/model storage within a project. Both backends
// derive their hierarchical layout from it, so blobs never collide
// across tenants or projects and everything under a scope can be
// removed by prefix.
type Owner struct {
	Session identity.Session
}

// localPath is the owner's directory relative to the local working
// directory: workspaces/<ws>/projects/<proj>[/dataset_storages/<id>|
// /model_storages/<id>].
func (o Owner) localPath() string {
	p := filepath.Join(
		"workspaces", o.Session.WorkspaceID.Hex(),
		"projects", o.Session.ProjectID.Hex(),
	)
	switch {
	case !o.Session.DatasetStorageID.IsZero():
		p = filepath.Join(p, "dataset_storages", o.Session.DatasetStorageID.Hex())
	case !o.Session.ModelStorageID.IsZero():
		p = filepath.Join(p, "model_storages", o.Session.ModelStorageID.Hex())
	}
	return p
}

// keyPrefix is the owner's object key prefix:
// <base>/organizations/<org>/workspaces/<ws>/projects/<proj>[/...]. The
// base path distinguishes cells in multi-cell deployments and may be
// empty.
func (o Owner) keyPrefix(basePath string) string {
	p := path.Join(
		"organizations", o.Session.OrganizationID.Hex(),
		"workspaces", o.Session.WorkspaceID.Hex(),
		"projects", o.Session.ProjectID.Hex(),
	)
	switch {
	case !o.Session.DatasetStorageID.IsZero():
		p = path.Join(p, "dataset_storages", o.Session.DatasetStorageID.Hex())
	case !o.Session.ModelStorageID.IsZero():
		p = path.Join(p, "model_storages", o.Session.ModelStorageID.Hex())
	}
	if basePath != "" {
		p = path.Join(basePath, p)
	}
	return p
}
