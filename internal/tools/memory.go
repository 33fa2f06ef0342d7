package tools

import (
	"context"
	"sync"

	"github.com/ValeryJL/InsanusChat-Backend/internal/store"
)

// MemoryRegistry holds descriptors in a map. It backs tests and local
// development without a database.
type MemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
}

// NewMemoryRegistry creates a registry pre-loaded with the given descriptors
func NewMemoryRegistry(descriptors ...Descriptor) *MemoryRegistry {
	r := &MemoryRegistry{tools: make(map[string]Descriptor)}
	for _, d := range descriptors {
		r.tools[d.Meta().ID] = d
	}
	return r
}

// Add registers or replaces a descriptor
func (r *MemoryRegistry) Add(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[d.Meta().ID] = d
}

func (r *MemoryRegistry) Resolve(ctx context.Context, id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (r *MemoryRegistry) ResolveAll(ctx context.Context, ids []string) ([]Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.tools[id]; ok {
			descriptors = append(descriptors, d)
		}
	}
	return descriptors, nil
}
