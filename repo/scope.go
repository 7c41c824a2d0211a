package repo

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/open-edge-platform/geti-persistence/identity"
)

// ScopeFilter produces the tenant-scope predicate for a session. The
// same field/value pairs are stamped onto every stored document, so a
// document is visible only to the scope that wrote it. Narrower scopes
// must extend the base filter, never replace it.
type ScopeFilter func(identity.Session) bson.M

// WorkspaceScope is the base tenant filter: organization plus workspace.
func WorkspaceScope() ScopeFilter {
	return func(s identity.Session) bson.M {
		return bson.M{
			"organization_id": s.OrganizationID,
			"workspace_id":    s.WorkspaceID,
		}
	}
}

// ProjectScope extends the base filter with the project id.
func ProjectScope() ScopeFilter {
	base := WorkspaceScope()
	return func(s identity.Session) bson.M {
		f := base(s)
		f["project_id"] = s.ProjectID
		return f
	}
}

// DatasetStorageScope extends the project filter with the dataset
// storage id.
func DatasetStorageScope() ScopeFilter {
	base := ProjectScope()
	return func(s identity.Session) bson.M {
		f := base(s)
		f["dataset_storage_id"] = s.DatasetStorageID
		return f
	}
}

// ModelStorageScope extends the project filter with the model storage id.
func ModelStorageScope() ScopeFilter {
	base := ProjectScope()
	return func(s identity.Session) bson.M {
		f := base(s)
		f["model_storage_id"] = s.ModelStorageID
		return f
	}
}

// scopeIndex builds the compound tenant-scope + id index every
// repository carries, with scope fields in a stable order.
func scopeIndex(scope ScopeFilter, session identity.Session) mongo.IndexModel {
	fields := make([]string, 0, 4)
	for field := range scope(session) {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	keys := bson.D{}
	for _, field := range fields {
		keys = append(keys, bson.E{Key: field, Value: 1})
	}
	keys = append(keys, bson.E{Key: "_id", Value: 1})
	return mongo.IndexModel{Keys: keys, Options: options.Index()}
}
