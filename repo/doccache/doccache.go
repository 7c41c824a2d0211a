// Package doccache provides an optional read-through cache for raw
// documents in front of the document store. The repository consults it
// on single-document reads and invalidates on writes; the default NoOp
// implementation keeps the repository path allocation-free when no cache
// is deployed.
package doccache

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Cache stores serialized documents keyed by collection and id. Lookups
// are best effort: implementations log failures and report a miss rather
// than surfacing cache errors to the repository.
type Cache interface {
	Get(ctx context.Context, collection string, id primitive.ObjectID) (bson.Raw, bool)
	Set(ctx context.Context, collection string, id primitive.ObjectID, doc bson.Raw)
	Delete(ctx context.Context, collection string, id primitive.ObjectID)
}

// NoOp implements Cache and does nothing.
type NoOp struct{}

func (NoOp) Get(context.Context, string, primitive.ObjectID) (bson.Raw, bool) {
	return nil, false
}

func (NoOp) Set(context.Context, string, primitive.ObjectID, bson.Raw) {}

func (NoOp) Delete(context.Context, string, primitive.ObjectID) {}
