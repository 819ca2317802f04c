package config

import "github.com/zclconf/go-cty/cty"

// Model is the unified, format-agnostic representation of everything the
// user declared: one or more pipeline topologies.
type Model struct {
	Pipelines []*Pipeline
}

// Pipeline represents a user-defined processing topology.
type Pipeline struct {
	Name        string
	Nodes       []*Node
	Connections []*Connection
}

// Node is the format-agnostic representation of a `node` block. Params
// carry the evaluated attribute values handed to the node factory.
type Node struct {
	Kind   string
	Name   string
	Params map[string]cty.Value
}

// Connection is the format-agnostic representation of a `connect` block.
// Output and Input are slot indices on the named nodes; both default to
// zero.
type Connection struct {
	From   string
	Output int
	To     string
	Input  int
}
