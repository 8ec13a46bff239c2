package governor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitUpToLimit(t *testing.T) {
	t.Parallel()

	g := New(2, 1024)

	release1, err := g.Admit()
	require.NoError(t, err)
	release2, err := g.Admit()
	require.NoError(t, err)
	assert.Equal(t, int64(2), g.Active())

	_, err = g.Admit()
	assert.ErrorIs(t, err, ErrConcurrencyLimit)

	release1()
	assert.Equal(t, int64(1), g.Active())

	release3, err := g.Admit()
	require.NoError(t, err)

	release2()
	release3()
	assert.Equal(t, int64(0), g.Active())
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	g := New(1, 1024)
	release, err := g.Admit()
	require.NoError(t, err)

	release()
	release()
	assert.Equal(t, int64(0), g.Active())

	// The slot must not have been released twice.
	release2, err := g.Admit()
	require.NoError(t, err)
	_, err = g.Admit()
	assert.ErrorIs(t, err, ErrConcurrencyLimit)
	release2()
}

func TestAdmitUnderContention(t *testing.T) {
	t.Parallel()

	const limit = 4
	g := New(limit, 1024)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var maxSeen int64

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Admit()
			if err != nil {
				return
			}
			defer release()

			active := g.Active()
			mu.Lock()
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen, int64(limit))
	assert.Equal(t, int64(0), g.Active())
}

func TestEstimateMB(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(3), EstimateMB(1))
	assert.Equal(t, uint64(3), EstimateMB(1<<20))
	assert.Equal(t, uint64(5), EstimateMB(2<<20))
	assert.Equal(t, uint64(25), EstimateMB(10<<20))
}

func TestEnsureBlockFits(t *testing.T) {
	t.Parallel()

	g := New(1, 10)
	assert.NoError(t, g.EnsureBlockFits(4<<20))
	assert.NoError(t, g.EnsureBlockFits(0))

	err := g.EnsureBlockFits(5 << 20)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMemoryLimit)
	assert.Contains(t, err.Error(), "available: 10MB")
}
