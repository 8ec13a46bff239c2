// Package session maps opaque numeric handles to engine instances so
// the C ABI can refer to processors without exposing pointers.  Handles
// are unique for the life of the process and never zero; zero is the
// reserved "invalid" value.
package session

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/LumeraProtocol/rq-library/pkg/processor"
)

// Registry is a process-wide handle table.  All methods are safe for
// concurrent use; the mutex is held only for the map operation itself.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint64]*processor.Processor
	next     atomic.Uint64
}

// NewRegistry returns an empty registry.  Handle numbering starts at 1.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint64]*processor.Processor),
	}
}

// Register stores a processor and returns its fresh handle.
func (r *Registry) Register(p *processor.Processor) uint64 {
	handle := r.next.Inc()

	r.mu.Lock()
	r.sessions[handle] = p
	r.mu.Unlock()

	return handle
}

// Lookup resolves a handle.  The second return value is false for
// unknown or already freed handles.
func (r *Registry) Lookup(handle uint64) (*processor.Processor, bool) {
	r.mu.Lock()
	p, ok := r.sessions[handle]
	r.mu.Unlock()
	return p, ok
}

// Free removes a handle.  It reports whether the handle was live; a
// second Free of the same handle returns false.
func (r *Registry) Free(handle uint64) bool {
	r.mu.Lock()
	_, ok := r.sessions[handle]
	delete(r.sessions, handle)
	r.mu.Unlock()
	return ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
