package repo

import "go.mongodb.org/mongo-driver/bson"

type queryOptions struct {
	extraFilter bson.M
	sort        bson.D
	latest      bool
	earliest    bool
	sortField   string
}

// QueryOption adjusts a repository read.
type QueryOption func(*queryOptions)

// WithFilter adds field predicates on top of the tenant filter.
func WithFilter(filter bson.M) QueryOption {
	return func(o *queryOptions) { o.extraFilter = filter }
}

// WithSort sets an explicit sort order for GetAll.
func WithSort(sort bson.D) QueryOption {
	return func(o *queryOptions) { o.sort = sort }
}

// Latest makes GetOne return the match with the highest id. Mutually
// exclusive with Earliest.
func Latest() QueryOption {
	return func(o *queryOptions) { o.latest = true }
}

// Earliest makes GetOne return the match with the lowest id. Mutually
// exclusive with Latest.
func Earliest() QueryOption {
	return func(o *queryOptions) { o.earliest = true }
}

// BySortField sorts Latest/Earliest by the given field first, with id as
// the tie-breaker.
func BySortField(field string) QueryOption {
	return func(o *queryOptions) { o.sortField = field }
}

func applyQueryOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// orderSort returns the sort document for Latest/Earliest resolution:
// the optional secondary field first, id as the authoritative
// tie-breaker.
func (o queryOptions) orderSort() bson.D {
	direction := 1
	if o.latest {
		direction = -1
	}
	sort := bson.D{}
	if o.sortField != "" && o.sortField != "_id" {
		sort = append(sort, bson.E{Key: o.sortField, Value: direction})
	}
	return append(sort, bson.E{Key: "_id", Value: direction})
}
