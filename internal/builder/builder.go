// Package builder turns a loaded config model into a live graph: a first
// pass creates a stage per declared node, a second pass establishes the
// declared connections.
package builder

import (
	"context"
	"fmt"

	"github.com/vk/packetgrid/internal/config"
	"github.com/vk/packetgrid/internal/ctxlog"
	"github.com/vk/packetgrid/internal/graph"
	"github.com/vk/packetgrid/internal/registry"
	"github.com/vk/packetgrid/internal/stage"
)

// Build populates g with every node and connection declared in the model
// and returns handles keyed by "pipeline.name". Node names must be unique
// within their pipeline.
func Build(ctx context.Context, model *config.Model, reg *registry.Registry, g *graph.Graph) (map[string]stage.NodeHandle, error) {
	logger := ctxlog.FromContext(ctx)
	handles := make(map[string]stage.NodeHandle)

	for _, p := range model.Pipelines {
		byName := make(map[string]stage.NodeHandle, len(p.Nodes))

		for _, n := range p.Nodes {
			if _, exists := byName[n.Name]; exists {
				return nil, fmt.Errorf("pipeline %q: duplicate node name %q", p.Name, n.Name)
			}
			factory, ok := reg.Lookup(n.Kind)
			if !ok {
				return nil, fmt.Errorf("pipeline %q node %q: unknown kind %q", p.Name, n.Name, n.Kind)
			}
			node, err := factory(n.Name, n.Params)
			if err != nil {
				return nil, fmt.Errorf("pipeline %q node %q: %w", p.Name, n.Name, err)
			}
			id := fmt.Sprintf("%s.%s.%s", p.Name, n.Kind, n.Name)
			h := g.Add(node, graph.WithName(id))
			byName[n.Name] = h
			handles[fmt.Sprintf("%s.%s", p.Name, n.Name)] = h
			logger.Debug("Node built.", "id", id)
		}

		for _, c := range p.Connections {
			from, ok := byName[c.From]
			if !ok {
				return nil, fmt.Errorf("pipeline %q: connect from unknown node %q", p.Name, c.From)
			}
			to, ok := byName[c.To]
			if !ok {
				return nil, fmt.Errorf("pipeline %q: connect to unknown node %q", p.Name, c.To)
			}
			fs, ts := from.Stage(), to.Stage()
			if c.Output >= fs.OutputCount() {
				return nil, fmt.Errorf("pipeline %q: node %q has no output %d", p.Name, c.From, c.Output)
			}
			if c.Input >= ts.InputCount() {
				return nil, fmt.Errorf("pipeline %q: node %q has no input %d", p.Name, c.To, c.Input)
			}
			g.Connect(from.Output(c.Output), to.Input(c.Input))
			logger.Debug("Connection built.",
				"from", c.From, "output", c.Output, "to", c.To, "input", c.Input)
		}
	}

	return handles, nil
}
