package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// VersionedResolver layers "current state" resolution over a repository
// that holds revisioned entities: documents that are never updated in
// place, where each save adds a revision sharing a grouping key (such as
// a media id) with its predecessors. Within a group, revisions are
// totally ordered by id; ids are allocated monotonically by the
// repository itself, so id ordering is authoritative even when two
// revisions share a wall-clock instant.
type VersionedResolver[T Entity, C any] struct {
	repo *Repository[T, C]
}

// NewVersionedResolver wraps the repository.
func NewVersionedResolver[T Entity, C any](r *Repository[T, C]) *VersionedResolver[T, C] {
	return &VersionedResolver[T, C]{repo: r}
}

// perGroupPipeline builds: match → sort(groupField, _id) → group keeping
// the first or last member → replaceRoot. The accumulator is $last for
// latest, $first for earliest.
func (v *VersionedResolver[T, C]) perGroupPipeline(matchFilter bson.M, groupField, accumulator string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: matchFilter}},
		{{Key: "$sort", Value: bson.D{
			{Key: groupField, Value: 1},
			{Key: "_id", Value: 1},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + groupField},
			{Key: "doc", Value: bson.M{accumulator: "$$ROOT"}},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
	}
}

// LatestPerGroup returns a lazy cursor with the highest-id revision of
// every group, optionally restricted by an extra filter.
func (v *VersionedResolver[T, C]) LatestPerGroup(ctx context.Context, groupField string, opts ...QueryOption) (*Cursor[T], error) {
	return v.perGroup(ctx, groupField, "$last", opts)
}

// EarliestPerGroup returns a lazy cursor with the lowest-id revision of
// every group.
func (v *VersionedResolver[T, C]) EarliestPerGroup(ctx context.Context, groupField string, opts ...QueryOption) (*Cursor[T], error) {
	return v.perGroup(ctx, groupField, "$first", opts)
}

func (v *VersionedResolver[T, C]) perGroup(ctx context.Context, groupField, accumulator string, opts []QueryOption) (*Cursor[T], error) {
	o := applyQueryOptions(opts)
	pipeline := v.perGroupPipeline(v.repo.filter(o.extraFilter), groupField, accumulator)
	cur, err := v.repo.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s per %s on %s: %w",
			accumulator, groupField, v.repo.name, err)
	}
	return newCursor(cur, v.repo.decode), nil
}

// LatestForKey resolves the latest revision for a single grouping key,
// returning the null placeholder when the key has no revisions.
func (v *VersionedResolver[T, C]) LatestForKey(ctx context.Context, groupField string, key ID) (T, error) {
	return v.repo.GetOne(ctx, WithFilter(bson.M{groupField: key}), Latest())
}

// LatestForKeys resolves the latest revision for each of the given
// grouping keys in one round trip. Every requested key is present in the
// result; keys without revisions map to the null placeholder.
func (v *VersionedResolver[T, C]) LatestForKeys(ctx context.Context, groupField string, keys []ID) (map[ID]T, error) {
	result := make(map[ID]T, len(keys))
	for _, key := range keys {
		result[key] = v.repo.serializer.Null()
	}
	if len(keys) == 0 {
		return result, nil
	}
	match := v.repo.filter(bson.M{groupField: bson.M{"$in": keys}})
	pipeline := v.perGroupPipeline(match, groupField, "$last")
	cur, err := v.repo.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to batch resolve latest per %s on %s: %w",
			groupField, v.repo.name, err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", v.repo.name, err)
		}
		key, ok := doc[groupField].(ID)
		if !ok {
			return nil, fmt.Errorf("document in %s has non-id %s field", v.repo.name, groupField)
		}
		entity, err := v.repo.decode(doc)
		if err != nil {
			return nil, err
		}
		result[key] = entity
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error on %s: %w", v.repo.name, err)
	}
	return result, nil
}

// CountLatest counts entities over the latest-per-group view. The
// reduction to latest revisions happens before the post filter is
// applied, so superseded revisions are never double-counted.
func (v *VersionedResolver[T, C]) CountLatest(ctx context.Context, groupField string, postFilter bson.M) (int64, error) {
	pipeline := v.perGroupPipeline(v.repo.filter(nil), groupField, "$last")
	if len(postFilter) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: postFilter}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$count", Value: "count"}})

	cur, err := v.repo.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to count latest per %s on %s: %w",
			groupField, v.repo.name, err)
	}
	defer cur.Close(ctx)

	var result struct {
		Count int64 `bson:"count"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&result); err != nil {
			return 0, fmt.Errorf("failed to decode count on %s: %w", v.repo.name, err)
		}
	}
	if err := cur.Err(); err != nil {
		return 0, fmt.Errorf("cursor error on %s: %w", v.repo.name, err)
	}
	return result.Count, nil
}
