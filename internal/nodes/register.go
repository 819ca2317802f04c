package nodes

import "github.com/vk/packetgrid/internal/registry"

// Builtins is the registry.Module bundling every built-in node kind.
type Builtins struct{}

// Register implements registry.Module.
func (Builtins) Register(r *registry.Registry) {
	r.Register("generator", newGeneratorNode)
	r.Register("passthrough", newPassthroughNode)
	r.Register("collector", newCollectorNode)
	r.Register("merge", newMergeNode)
}
