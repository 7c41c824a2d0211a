package repo

import (
	"bytes"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ID identifies a persisted entity. ObjectIDs embed a timestamp and a
// per-process counter, so ids allocated by NewID are globally unique and
// ordered by creation time, which makes id ordering the authoritative
// tie-breaker for revision resolution.
type ID = primitive.ObjectID

// NilID is the zero id. Lookups for it return the null placeholder.
var NilID = primitive.NilObjectID

// NewID allocates a fresh, time-ordered id.
func NewID() ID {
	return primitive.NewObjectID()
}

// IsNilID reports whether id is the zero id.
func IsNilID(id ID) bool {
	return id.IsZero()
}

// CompareIDs orders two ids by their byte representation, which for
// ObjectIDs coincides with creation order.
func CompareIDs(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}
