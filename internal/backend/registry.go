package backend

import (
	"context"
	"maps"
	"slices"

	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
)

// Factory builds a backend from its task parameters. Parameter errors are
// configuration errors; a factory must not touch storage.
type Factory func(ctx context.Context, params config.Params) (Backend, error)

// Module is implemented by every compiled-in backend package.
type Module interface {
	Register(r *Registry)
}

// Registry maps backend type names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry populated by the given modules.
func NewRegistry(modules ...Module) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// Register adds a factory. Registering a name twice panics, as it is a
// programming error.
func (r *Registry) Register(name string, f Factory) {
	if _, dup := r.factories[name]; dup {
		panic("backend: duplicate registration of " + name)
	}
	r.factories[name] = f
}

// New builds the named backend.
func (r *Registry) New(ctx context.Context, name string, params config.Params) (Backend, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, errs.Configf("unknown backend %q", name)
	}
	return f(ctx, params)
}

// Names lists registered backends, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.factories))
}
