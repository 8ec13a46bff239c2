package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LumeraProtocol/rq-library/pkg/processor"
)

func newProcessor(t *testing.T) *processor.Processor {
	t.Helper()
	p, err := processor.New(processor.DefaultConfig())
	require.NoError(t, err)
	return p
}

func TestRegisterLookupFree(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	p := newProcessor(t)

	handle := r.Register(p)
	assert.NotZero(t, handle)

	got, ok := r.Lookup(handle)
	require.True(t, ok)
	assert.Same(t, p, got)

	assert.True(t, r.Free(handle))
	_, ok = r.Lookup(handle)
	assert.False(t, ok)

	// Freeing twice reports failure, mirroring the ABI contract.
	assert.False(t, r.Free(handle))
}

func TestLookupUnknownHandle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, ok := r.Lookup(12345)
	assert.False(t, ok)
	assert.False(t, r.Free(12345))
}

func TestHandlesAreUniqueAndNonZero(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	p := newProcessor(t)

	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		handle := r.Register(p)
		assert.NotZero(t, handle)
		assert.False(t, seen[handle], "handle %d reused", handle)
		seen[handle] = true

		// Handles are never recycled, even after Free.
		require.True(t, r.Free(handle))
	}
	assert.Zero(t, r.Len())
}

func TestConcurrentRegistration(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	p := newProcessor(t)

	const n = 64
	handles := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = r.Register(p)
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, h := range handles {
		assert.NotZero(t, h)
		assert.False(t, seen[h])
		seen[h] = true
	}
	assert.Equal(t, n, r.Len())
}
