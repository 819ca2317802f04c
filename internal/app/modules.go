package app

import (
	"github.com/vk/packetgrid/internal/nodes"
	"github.com/vk/packetgrid/internal/registry"
)

// coreModules lists the node-kind modules registered with every App
// instance unless the caller injects its own set.
var coreModules = []registry.Module{
	nodes.Builtins{},
}
