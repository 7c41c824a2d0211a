// Package cache provides a shared-instance cache for sub-entities that
// are referenced by many parents, such as one annotation scene shared by
// every dataset item annotated in the same pass. Within overlapping
// lifetimes, all loads for the same id resolve to the identical
// instance; entries are held weakly, so memory is reclaimed once no
// caller keeps a strong reference.
package cache

import (
	"runtime"
	"sync"
	"weak"

	"github.com/open-edge-platform/geti-persistence/repo"
)

type cacheKey struct {
	scope string
	id    repo.ID
}

type reference interface {
	value() (any, bool)
}

type typedReference[T any] struct {
	ptr weak.Pointer[T]
}

func (r typedReference[T]) value() (any, bool) {
	v := r.ptr.Value()
	if v == nil {
		return nil, false
	}
	return v, true
}

// Cache holds weakly referenced entity instances keyed by scope and id.
// Construct one at startup and inject it where shared loads happen; it
// is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]reference
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[cacheKey]reference)}
}

// Len returns the number of entries currently tracked, including entries
// whose instance has already been collected but not yet pruned.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrLoad returns the live instance for (scope, id), invoking loader
// on a miss and caching the result weakly. Lookup-and-insert runs under
// one mutex; the loader runs outside it so a slow fetch does not stall
// unrelated keys. Two concurrent misses for the same id may both invoke
// loader, but the caller whose insert loses discards its copy and adopts
// the cached instance, so every caller observes the same instance.
func GetOrLoad[T any](c *Cache, scope string, id repo.ID, loader func() (*T, error)) (*T, error) {
	key := cacheKey{scope: scope, id: id}

	c.mu.Lock()
	if ref, ok := c.entries[key]; ok {
		if v, live := ref.value(); live {
			c.mu.Unlock()
			return v.(*T), nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	instance, err := loader()
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, nil
	}

	c.mu.Lock()
	if ref, ok := c.entries[key]; ok {
		// A concurrent miss finished first; adopt its instance so all
		// callers in the batch share one.
		if v, live := ref.value(); live {
			c.mu.Unlock()
			return v.(*T), nil
		}
	}
	c.entries[key] = typedReference[T]{ptr: weak.Make(instance)}
	c.mu.Unlock()

	// Prune the entry once the instance is collected, unless a live
	// replacement has been inserted in the meantime.
	runtime.AddCleanup(instance, func(k cacheKey) {
		c.mu.Lock()
		if ref, ok := c.entries[k]; ok {
			if _, live := ref.value(); !live {
				delete(c.entries, k)
			}
		}
		c.mu.Unlock()
	}, key)

	return instance, nil
}

// Invalidate drops the entry for (scope, id), forcing the next
// GetOrLoad to invoke its loader.
func (c *Cache) Invalidate(scope string, id repo.ID) {
	c.mu.Lock()
	delete(c.entries, cacheKey{scope: scope, id: id})
	c.mu.Unlock()
}
