package hcl

import (
	"fmt"

	"github.com/vk/packetgrid/internal/config"
	"github.com/vk/packetgrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// translatePipeline converts one HCL pipeline block into the agnostic
// model, evaluating node parameter attributes into cty values.
func translatePipeline(p *schema.Pipeline) (*config.Pipeline, error) {
	out := &config.Pipeline{Name: p.Name}

	for _, n := range p.Nodes {
		params, err := evaluateParams(n)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q node %q: %w", p.Name, n.Name, err)
		}
		out.Nodes = append(out.Nodes, &config.Node{
			Kind:   n.Kind,
			Name:   n.Name,
			Params: params,
		})
	}

	for _, c := range p.Connections {
		conn := &config.Connection{From: c.From, To: c.To}
		if c.Output != nil {
			conn.Output = *c.Output
		}
		if c.Input != nil {
			conn.Input = *c.Input
		}
		out.Connections = append(out.Connections, conn)
	}

	return out, nil
}

// evaluateParams flattens a node block's remaining body into evaluated
// attribute values. Parameters are constant expressions; there is no
// cross-node reference scope.
func evaluateParams(n *schema.Node) (map[string]cty.Value, error) {
	if n.Remain == nil {
		return nil, nil
	}
	attrs, diags := n.Remain.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid parameters: %w", diags)
	}
	if len(attrs) == 0 {
		return nil, nil
	}

	params := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parameter %q: %w", name, diags)
		}
		params[name] = val
	}
	return params, nil
}
