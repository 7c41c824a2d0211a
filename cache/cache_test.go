package cache

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-edge-platform/geti-persistence/repo"
)

type annotationScene struct {
	ID     repo.ID
	Labels []string
}

func TestGetOrLoadSharesOneInstance(t *testing.T) {
	c := New()
	id := repo.NewID()
	loads := 0
	loader := func() (*annotationScene, error) {
		loads++
		return &annotationScene{ID: id, Labels: []string{"cat"}}, nil
	}

	first, err := GetOrLoad(c, "scenes", id, loader)
	require.NoError(t, err)
	second, err := GetOrLoad(c, "scenes", id, loader)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, loads)
}

func TestGetOrLoadScopesAreIndependent(t *testing.T) {
	c := New()
	id := repo.NewID()

	scene, err := GetOrLoad(c, "scenes", id, func() (*annotationScene, error) {
		return &annotationScene{ID: id}, nil
	})
	require.NoError(t, err)

	other, err := GetOrLoad(c, "predictions", id, func() (*annotationScene, error) {
		return &annotationScene{ID: id}, nil
	})
	require.NoError(t, err)

	assert.NotSame(t, scene, other)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrLoadPropagatesLoaderError(t *testing.T) {
	c := New()
	wantErr := errors.New("store unavailable")

	_, err := GetOrLoad(c, "scenes", repo.NewID(), func() (*annotationScene, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Zero(t, c.Len())
}

func TestInvalidateForcesReload(t *testing.T) {
	c := New()
	id := repo.NewID()
	loads := 0
	loader := func() (*annotationScene, error) {
		loads++
		return &annotationScene{ID: id}, nil
	}

	scene, err := GetOrLoad(c, "scenes", id, loader)
	require.NoError(t, err)
	c.Invalidate("scenes", id)

	reloaded, err := GetOrLoad(c, "scenes", id, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.NotSame(t, scene, reloaded)
}

func TestCollectedEntriesAreReloaded(t *testing.T) {
	c := New()
	id := repo.NewID()
	var loads atomic.Int32
	loader := func() (*annotationScene, error) {
		loads.Add(1)
		return &annotationScene{ID: id}, nil
	}

	scene, err := GetOrLoad(c, "scenes", id, loader)
	require.NoError(t, err)
	require.Equal(t, int32(1), loads.Load())
	// Drop the only strong reference and let the collector reclaim it.
	scene = nil
	_ = scene

	assert.Eventually(t, func() bool {
		runtime.GC()
		fresh, err := GetOrLoad(c, "scenes", id, loader)
		if err != nil || fresh == nil {
			return false
		}
		return loads.Load() >= 2
	}, time.Second, 10*time.Millisecond, "entry was never collected")
}

func TestGetOrLoadConcurrentMissesAgree(t *testing.T) {
	c := New()
	id := repo.NewID()

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		instances = map[*annotationScene]struct{}{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scene, err := GetOrLoad(c, "scenes", id, func() (*annotationScene, error) {
				return &annotationScene{ID: id}, nil
			})
			assert.NoError(t, err)
			mu.Lock()
			instances[scene] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Everyone who raced on the same id must have ended up with the same
	// live instance.
	assert.Len(t, instances, 1)
}
