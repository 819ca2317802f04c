// Package registry maps node kind names from pipeline definitions to the
// Go factories that construct them.
package registry

import (
	"fmt"
	"sort"

	"github.com/vk/packetgrid/internal/stage"
	"github.com/zclconf/go-cty/cty"
)

// Factory constructs a node of one kind from its evaluated pipeline
// parameters.
type Factory func(name string, params map[string]cty.Value) (stage.Node, error)

// Module is the interface a collection of node kinds implements to be
// registered as a group.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered node factories for a single application
// instance.
type Registry struct {
	factories map[string]Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for a node kind. Registering the same kind
// twice is a programmer error and panics.
func (r *Registry) Register(kind string, f Factory) {
	if _, exists := r.factories[kind]; exists {
		panic(fmt.Sprintf("registry: duplicate node kind %q", kind))
	}
	r.factories[kind] = f
}

// Lookup returns the factory for a kind.
func (r *Registry) Lookup(kind string) (Factory, bool) {
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kind names, sorted for stable output.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
