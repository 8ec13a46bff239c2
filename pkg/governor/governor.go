// Package governor bounds the resources a session may consume: a
// counting semaphore caps simultaneous encode/decode operations and a
// pre-flight estimate rejects blocks that cannot fit the configured
// memory budget.  Admission is non-blocking; a rejected caller retries
// after an in-flight operation completes.
package governor

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

const (
	// memoryOverheadFactor is the empirically observed peak working set
	// of the codec relative to the raw block size.
	memoryOverheadFactor = 2.5

	mib = 1 << 20
)

var (
	// ErrConcurrencyLimit is returned by Admit when the session is
	// already running its maximum number of operations.
	ErrConcurrencyLimit = errors.New("concurrency limit reached")

	// ErrMemoryLimit is returned by EnsureBlockFits when a block's
	// estimated working set exceeds the configured budget.
	ErrMemoryLimit = errors.New("memory limit exceeded")
)

// Governor is the admission controller for one session.
type Governor struct {
	sem         *semaphore.Weighted
	active      atomic.Int64
	maxMemoryMB uint64
}

// New returns a governor enforcing the given limits.  concurrencyLimit
// must be at least 1.
func New(concurrencyLimit, maxMemoryMB uint64) *Governor {
	return &Governor{
		sem:         semaphore.NewWeighted(int64(concurrencyLimit)),
		maxMemoryMB: maxMemoryMB,
	}
}

// Admit claims one operation slot without blocking.  On success the
// returned release function gives the slot back; it is idempotent and
// must be called on every exit path.
func (g *Governor) Admit() (func(), error) {
	if !g.sem.TryAcquire(1) {
		return nil, ErrConcurrencyLimit
	}
	g.active.Inc()

	released := atomic.NewBool(false)
	return func() {
		if released.CompareAndSwap(false, true) {
			g.active.Dec()
			g.sem.Release(1)
		}
	}, nil
}

// Active reports the number of operations currently admitted.
func (g *Governor) Active() int64 {
	return g.active.Load()
}

// EstimateMB returns the estimated peak working set, in whole
// mebibytes, for processing a block of sizeBytes at once.
func EstimateMB(sizeBytes uint64) uint64 {
	dataMB := (sizeBytes + mib - 1) / mib
	return uint64(math.Ceil(float64(dataMB) * memoryOverheadFactor))
}

// EnsureBlockFits rejects a block whose estimated working set exceeds
// the configured memory budget.  The check is a pre-flight estimate
// only; no runtime measurement happens.
func (g *Governor) EnsureBlockFits(sizeBytes uint64) error {
	required := EstimateMB(sizeBytes)
	if required > g.maxMemoryMB {
		return fmt.Errorf("%w: required: %dMB, available: %dMB",
			ErrMemoryLimit, required, g.maxMemoryMB)
	}
	return nil
}
