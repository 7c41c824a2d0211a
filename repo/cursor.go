package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/open-edge-platform/geti-persistence/internal/errorx"
)

// Cursor lazily maps a backing query cursor into typed entities. It is a
// finite, forward-only sequence: once exhausted it cannot be iterated
// again, and attempting to do so surfaces ErrCursorExhausted instead of
// silently yielding an empty second read.
type Cursor[T any] struct {
	cur       *mongo.Cursor
	decode    func(bson.M) (T, error)
	current   T
	err       error
	exhausted bool
}

func newCursor[T any](cur *mongo.Cursor, decode func(bson.M) (T, error)) *Cursor[T] {
	return &Cursor[T]{cur: cur, decode: decode}
}

// Next advances to the next entity. It returns false when the sequence
// ends or an error occurs; check Err afterwards.
func (c *Cursor[T]) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.exhausted {
		c.err = errorx.ErrCursorExhausted
		return false
	}
	if !c.cur.Next(ctx) {
		c.exhausted = true
		c.err = c.cur.Err()
		_ = c.cur.Close(ctx)
		return false
	}
	var doc bson.M
	if err := c.cur.Decode(&doc); err != nil {
		c.fail(ctx, fmt.Errorf("failed to decode document: %w", err))
		return false
	}
	value, err := c.decode(doc)
	if err != nil {
		c.fail(ctx, err)
		return false
	}
	c.current = value
	return true
}

// fail records the error and releases the backing cursor, which would
// otherwise stay open on the server.
func (c *Cursor[T]) fail(ctx context.Context, err error) {
	c.err = err
	c.exhausted = true
	_ = c.cur.Close(ctx)
}

// Value returns the entity produced by the last successful Next.
func (c *Cursor[T]) Value() T {
	return c.current
}

// Err returns the first error encountered during iteration.
func (c *Cursor[T]) Err() error {
	return c.err
}

// All drains the remaining sequence into a slice. Draining an already
// exhausted cursor returns ErrCursorExhausted.
func (c *Cursor[T]) All(ctx context.Context) ([]T, error) {
	if c.exhausted && c.err == nil {
		c.err = errorx.ErrCursorExhausted
	}
	if c.err != nil {
		return nil, c.err
	}
	results := []T{}
	for c.Next(ctx) {
		results = append(results, c.Value())
	}
	if c.err != nil {
		return nil, c.err
	}
	return results, nil
}

// Close releases the underlying cursor early. Iterating after Close is
// treated as iterating an exhausted cursor.
func (c *Cursor[T]) Close(ctx context.Context) error {
	if c.exhausted {
		return nil
	}
	c.exhausted = true
	return c.cur.Close(ctx)
}
