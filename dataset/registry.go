// Package dataset maps dataset names to loaders producing record collections.
package dataset

import (
	"context"
	"sync"

	"github.com/datar-psa/evalkit/api"
)

// Loader produces the records of one dataset split.
// An empty split selects the loader's default split.
type Loader func(ctx context.Context, split string) (api.Records, error)

// Registry maps dataset names to loaders.
//
// Registration is expected to happen at start-up, before any lookup.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
	names   []string
}

// NewRegistry creates an empty dataset registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]Loader)}
}

// Register associates name with loader. Same name loader will be overwritten.
func (r *Registry) Register(name string, loader Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaders[name]; !ok {
		r.names = append(r.names, name)
	}
	r.loaders[name] = loader
}

// Get returns the loader registered under name, or a *api.NotFoundError.
func (r *Registry) Get(name string) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loader, ok := r.loaders[name]
	if !ok {
		return nil, &api.NotFoundError{Kind: "dataset", Key: name}
	}
	return loader, nil
}

// Names returns registered dataset names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Load looks up name and runs its loader. Loader errors are returned unmodified.
func (r *Registry) Load(ctx context.Context, name, split string) (api.Records, error) {
	loader, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return loader(ctx, split)
}

// Static returns a loader that always yields clones of records, whatever the split.
func Static(records api.Records) Loader {
	return func(context.Context, string) (api.Records, error) {
		return records.Clone(), nil
	}
}
