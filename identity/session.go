// Package identity carries the tenant scope a request operates under.
// Every repository read and write is stamped with and filtered by the
// session's organization and workspace identifiers, plus any narrower
// project or storage scope.
package identity

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/open-edge-platform/geti-persistence/internal/errorx"
)

// Session identifies the tenant scope of a request. It is an immutable
// value: narrower scopes are derived with the With* helpers, which copy.
type Session struct {
	OrganizationID   primitive.ObjectID
	WorkspaceID      primitive.ObjectID
	ProjectID        primitive.ObjectID
	DatasetStorageID primitive.ObjectID
	ModelStorageID   primitive.ObjectID
}

// WithProject returns a copy of the session scoped to a project.
func (s Session) WithProject(projectID primitive.ObjectID) Session {
	s.ProjectID = projectID
	return s
}

// WithDatasetStorage returns a copy of the session scoped to a dataset
// storage within the current project.
func (s Session) WithDatasetStorage(storageID primitive.ObjectID) Session {
	s.DatasetStorageID = storageID
	return s
}

// WithModelStorage returns a copy of the session scoped to a model
// storage within the current project.
func (s Session) WithModelStorage(storageID primitive.ObjectID) Session {
	s.ModelStorageID = storageID
	return s
}

// MissingSessionPolicy selects the behavior of Source.Get when no
// session is attached to the context.
type MissingSessionPolicy int

const (
	// RequireExplicit fails the lookup when the context carries no session.
	RequireExplicit MissingSessionPolicy = iota
	// UseDefault falls back to the source's default session.
	UseDefault
)

type sessionKey struct{}

// NewContext returns a context carrying the given session.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext extracts the session from the context, reporting whether
// one was present.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// Source resolves the tenant session for a request. It is constructed
// once at startup with the deployment's default session and injected
// into repository factories, rather than consulted through a global.
type Source struct {
	defaultSession Session
}

// NewSource returns a Source with the given default session.
func NewSource(def Session) *Source {
	return &Source{defaultSession: def}
}

// TryGet extracts the session from the context without applying any
// fallback policy.
func (src *Source) TryGet(ctx context.Context) (Session, bool) {
	return FromContext(ctx)
}

// Get resolves the session for the context according to the policy.
func (src *Source) Get(ctx context.Context, policy MissingSessionPolicy) (Session, error) {
	if s, ok := FromContext(ctx); ok {
		return s, nil
	}
	if policy == UseDefault {
		return src.defaultSession, nil
	}
	return Session{}, errorx.ErrMissingSession
}
