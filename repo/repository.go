// Package repo implements tenant-scoped persistence over a document
// store. A Repository is cheap to construct (typically once per request)
// and binds a collection, a tenant session, and a serializer; every read
// and write it issues is filtered by the session's tenant scope.
package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/open-edge-platform/geti-persistence/identity"
	"github.com/open-edge-platform/geti-persistence/internal/errorx"
	"github.com/open-edge-platform/geti-persistence/internal/log"
	"github.com/open-edge-platform/geti-persistence/repo/doccache"
)

// Repository provides tenant-isolated CRUD over one collection. T is the
// entity type, C the extra context the serializer needs to reconstruct
// entities on reads.
type Repository[T Entity, C any] struct {
	name       string
	db         *mongo.Database
	session    identity.Session
	scope      ScopeFilter
	serializer Serializer[T, C]
	backward   C
	cache      doccache.Cache
	logger     zerolog.Logger

	collOnce sync.Once
	coll     *mongo.Collection
}

// Option configures a repository at construction time.
type Option[T Entity, C any] func(*Repository[T, C])

// WithDocumentCache attaches a read-through document cache. Single
// document reads consult it first; writes invalidate it.
func WithDocumentCache[T Entity, C any](cache doccache.Cache) Option[T, C] {
	return func(r *Repository[T, C]) { r.cache = cache }
}

// WithBackwardContext sets the extra context passed to the serializer's
// Backward mapping.
func WithBackwardContext[T Entity, C any](extra C) Option[T, C] {
	return func(r *Repository[T, C]) { r.backward = extra }
}

// New constructs a repository over the named collection. The compound
// tenant-scope + id index, plus any extra indexes, are provisioned
// idempotently: creation is issued at most once per collection name per
// process, no matter how many repositories are constructed.
func New[T Entity, C any](
	db *mongo.Database,
	name string,
	session identity.Session,
	scope ScopeFilter,
	serializer Serializer[T, C],
	extraIndexes []mongo.IndexModel,
	opts ...Option[T, C],
) *Repository[T, C] {
	r := &Repository[T, C]{
		name:       name,
		db:         db,
		session:    session,
		scope:      scope,
		serializer: serializer,
		cache:      doccache.NoOp{},
		logger:     log.For("repo").With().Str("collection", name).Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	indexes := append([]mongo.IndexModel{scopeIndex(scope, session)}, extraIndexes...)
	ensureIndexes(db.Collection(name), name, indexes)
	return r
}

// collection returns the lazily created collection handle. The handle is
// cached per repository instance; the underlying client is shared safely
// across instances by the driver.
func (r *Repository[T, C]) collection() *mongo.Collection {
	r.collOnce.Do(func() {
		r.coll = r.db.Collection(r.name)
	})
	return r.coll
}

// NewID allocates a fresh, time-ordered entity id.
func (r *Repository[T, C]) NewID() ID {
	return NewID()
}

// Session returns the tenant session the repository is bound to.
func (r *Repository[T, C]) Session() identity.Session {
	return r.session
}

// filter merges the tenant-scope predicate with optional extra
// predicates. Extra predicates never override scope fields.
func (r *Repository[T, C]) filter(extra bson.M) bson.M {
	f := r.scope(r.session)
	for k, v := range extra {
		if _, scoped := f[k]; scoped {
			continue
		}
		f[k] = v
	}
	return f
}

// stamp injects the id and the tenant-scope fields into a document about
// to be written, making it visible only to this session's scope.
func (r *Repository[T, C]) stamp(doc bson.M, id ID) {
	doc["_id"] = id
	for k, v := range r.scope(r.session) {
		doc[k] = v
	}
}

func (r *Repository[T, C]) decode(doc bson.M) (T, error) {
	entity, err := r.serializer.Backward(doc, r.backward)
	if err != nil {
		return r.serializer.Null(), fmt.Errorf("failed to map document from %s: %w", r.name, err)
	}
	return entity, nil
}

// matchesScope verifies a cached document carries this session's scope
// stamp. Cache keys are collection + id only, so the scope must be
// re-checked before a cached document may be returned.
func (r *Repository[T, C]) matchesScope(doc bson.M) bool {
	for k, want := range r.scope(r.session) {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if id, isID := got.(ID); !isID || id != want.(ID) {
			return false
		}
	}
	return true
}

// GetByID returns the entity with the given id, or the null placeholder
// when id is the zero id or no tenant-visible document matches. It never
// returns a not-found error.
func (r *Repository[T, C]) GetByID(ctx context.Context, id ID) (T, error) {
	if IsNilID(id) {
		return r.serializer.Null(), nil
	}
	if raw, ok := r.cache.Get(ctx, r.name, id); ok {
		var doc bson.M
		if err := bson.Unmarshal(raw, &doc); err == nil && r.matchesScope(doc) {
			return r.decode(doc)
		}
	}
	raw, err := r.collection().FindOne(ctx, r.filter(bson.M{"_id": id})).Raw()
	if err == mongo.ErrNoDocuments {
		return r.serializer.Null(), nil
	}
	if err != nil {
		return r.serializer.Null(), fmt.Errorf("failed to get %s document %s: %w", r.name, id.Hex(), err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return r.serializer.Null(), fmt.Errorf("failed to decode %s document %s: %w", r.name, id.Hex(), err)
	}
	r.cache.Set(ctx, r.name, id, bson.Raw(raw))
	return r.decode(doc)
}

// GetOne returns a single matching entity. Without Latest or Earliest
// any match may be returned; with one of them, matches are ordered by id
// (optionally by a secondary field first) and the first is returned. The
// null placeholder is returned when nothing matches.
func (r *Repository[T, C]) GetOne(ctx context.Context, opts ...QueryOption) (T, error) {
	o := applyQueryOptions(opts)
	if o.latest && o.earliest {
		return r.serializer.Null(), errorx.Preconditionf("latest and earliest are mutually exclusive")
	}
	findOpts := options.FindOne()
	if o.latest || o.earliest {
		findOpts.SetSort(o.orderSort())
	}
	var doc bson.M
	err := r.collection().FindOne(ctx, r.filter(o.extraFilter), findOpts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return r.serializer.Null(), nil
	}
	if err != nil {
		return r.serializer.Null(), fmt.Errorf("failed to query %s: %w", r.name, err)
	}
	return r.decode(doc)
}

// GetAll returns a lazy cursor over all tenant-visible documents
// matching the optional filter.
func (r *Repository[T, C]) GetAll(ctx context.Context, opts ...QueryOption) (*Cursor[T], error) {
	o := applyQueryOptions(opts)
	findOpts := options.Find()
	if o.sort != nil {
		findOpts.SetSort(o.sort)
	}
	cur, err := r.collection().Find(ctx, r.filter(o.extraFilter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.name, err)
	}
	return newCursor(cur, r.decode), nil
}

// GetAllIDs returns the ids of all tenant-visible documents matching the
// optional filter, fetching only the id field.
func (r *Repository[T, C]) GetAllIDs(ctx context.Context, opts ...QueryOption) ([]ID, error) {
	o := applyQueryOptions(opts)
	findOpts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.collection().Find(ctx, r.filter(o.extraFilter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s ids: %w", r.name, err)
	}
	defer cur.Close(ctx)

	var ids []ID
	for cur.Next(ctx) {
		var doc struct {
			ID ID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s id: %w", r.name, err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error on %s: %w", r.name, err)
	}
	return ids, nil
}

// Save upserts the entity's document, stamped with the tenant scope, and
// marks the entity persisted. An existing document with the same id is
// overwritten.
func (r *Repository[T, C]) Save(ctx context.Context, entity T) error {
	id := entity.GetID()
	if IsNilID(id) {
		return errorx.Preconditionf("cannot save to %s: entity has no id", r.name)
	}
	doc, err := r.serializer.Forward(entity)
	if err != nil {
		return fmt.Errorf("failed to serialize %s entity %s: %w", r.name, id.Hex(), err)
	}
	r.stamp(doc, id)
	_, err = r.collection().ReplaceOne(ctx, r.filter(bson.M{"_id": id}), doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save %s entity %s: %w", r.name, id.Hex(), err)
	}
	r.cache.Delete(ctx, r.name, id)
	entity.MarkPersisted()
	return nil
}

// SaveMany upserts all entities in a single bulk round trip. It is a
// no-op on empty input and rejects any entity without an id before
// writing anything. The bulk write is not atomic across entities; a
// caller needing atomicity must run it inside a session context
// (mongo.WithSession) carrying a multi-document transaction.
func (r *Repository[T, C]) SaveMany(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(entities))
	for _, entity := range entities {
		id := entity.GetID()
		if IsNilID(id) {
			return errorx.Preconditionf("cannot save to %s: entity has no id", r.name)
		}
		doc, err := r.serializer.Forward(entity)
		if err != nil {
			return fmt.Errorf("failed to serialize %s entity %s: %w", r.name, id.Hex(), err)
		}
		r.stamp(doc, id)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(r.filter(bson.M{"_id": id})).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if _, err := r.collection().BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("failed to bulk save %d entities to %s: %w", len(entities), r.name, err)
	}
	for _, entity := range entities {
		r.cache.Delete(ctx, r.name, entity.GetID())
		entity.MarkPersisted()
	}
	return nil
}

// DeleteByID deletes the entity's document and reports whether a
// tenant-visible document matched.
func (r *Repository[T, C]) DeleteByID(ctx context.Context, id ID) (bool, error) {
	if IsNilID(id) {
		return false, nil
	}
	result, err := r.collection().DeleteOne(ctx, r.filter(bson.M{"_id": id}))
	if err != nil {
		return false, fmt.Errorf("failed to delete %s entity %s: %w", r.name, id.Hex(), err)
	}
	r.cache.Delete(ctx, r.name, id)
	return result.DeletedCount > 0, nil
}

// DeleteAll deletes every tenant-visible document matching the optional
// filter and reports whether anything matched. The document cache keys
// by id only, so the matching ids are collected up front and invalidated
// after the bulk delete.
func (r *Repository[T, C]) DeleteAll(ctx context.Context, opts ...QueryOption) (bool, error) {
	o := applyQueryOptions(opts)
	var stale []ID
	if _, uncached := r.cache.(doccache.NoOp); !uncached {
		ids, err := r.GetAllIDs(ctx, opts...)
		if err != nil {
			return false, err
		}
		stale = ids
	}
	result, err := r.collection().DeleteMany(ctx, r.filter(o.extraFilter))
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", r.name, err)
	}
	for _, id := range stale {
		r.cache.Delete(ctx, r.name, id)
	}
	return result.DeletedCount > 0, nil
}

// Count returns the number of tenant-visible documents matching the
// optional filter.
func (r *Repository[T, C]) Count(ctx context.Context, opts ...QueryOption) (int64, error) {
	o := applyQueryOptions(opts)
	count, err := r.collection().CountDocuments(ctx, r.filter(o.extraFilter))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.name, err)
	}
	return count, nil
}

// Exists reports whether a tenant-visible document with the id exists.
func (r *Repository[T, C]) Exists(ctx context.Context, id ID) (bool, error) {
	if IsNilID(id) {
		return false, nil
	}
	count, err := r.collection().CountDocuments(ctx, r.filter(bson.M{"_id": id}),
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check %s existence: %w", r.name, err)
	}
	return count > 0, nil
}

// Distinct returns the distinct values of a field over the tenant-visible
// documents matching the optional filter.
func (r *Repository[T, C]) Distinct(ctx context.Context, field string, opts ...QueryOption) ([]any, error) {
	o := applyQueryOptions(opts)
	values, err := r.collection().Distinct(ctx, field, r.filter(o.extraFilter))
	if err != nil {
		return nil, fmt.Errorf("failed to get distinct %s.%s: %w", r.name, field, err)
	}
	return values, nil
}

// AggregateRead runs a read aggregation with the tenant match stage
// prepended to the caller's pipeline.
func (r *Repository[T, C]) AggregateRead(ctx context.Context, pipeline mongo.Pipeline) (*mongo.Cursor, error) {
	return r.aggregate(ctx, "read", pipeline)
}

// AggregateWrite runs a write aggregation (for example one ending in
// $merge) with the tenant match stage prepended. Behavior matches
// AggregateRead; the variants exist so reads and writes are
// distinguishable in logs.
func (r *Repository[T, C]) AggregateWrite(ctx context.Context, pipeline mongo.Pipeline) (*mongo.Cursor, error) {
	return r.aggregate(ctx, "write", pipeline)
}

func (r *Repository[T, C]) aggregate(ctx context.Context, kind string, pipeline mongo.Pipeline) (*mongo.Cursor, error) {
	full := make(mongo.Pipeline, 0, len(pipeline)+1)
	full = append(full, bson.D{{Key: "$match", Value: r.filter(nil)}})
	full = append(full, pipeline...)
	r.logger.Debug().Str("op", "aggregate_"+kind).Int("stages", len(full)).Send()
	cur, err := r.collection().Aggregate(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate on %s: %w", r.name, err)
	}
	return cur, nil
}
