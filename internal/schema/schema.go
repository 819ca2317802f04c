// Package schema holds the HCL-specific block structures that pipeline
// definition files decode into, before translation to the agnostic config
// model.
package schema

import "github.com/hashicorp/hcl/v2"

// File is the top-level structure of one .hcl pipeline file.
type File struct {
	Pipelines []*Pipeline `hcl:"pipeline,block"`
}

// Pipeline is a `pipeline "name" { ... }` block.
type Pipeline struct {
	Name        string        `hcl:"name,label"`
	Nodes       []*Node       `hcl:"node,block"`
	Connections []*Connection `hcl:"connect,block"`
}

// Node is a `node "kind" "name" { ... }` block. The remaining body holds
// arbitrary node parameters evaluated into cty values at translation time.
type Node struct {
	Kind   string   `hcl:"kind,label"`
	Name   string   `hcl:"name,label"`
	Remain hcl.Body `hcl:",remain"`
}

// Connection is a `connect { from = ... to = ... }` block. The optional
// output/input attributes pick endpoint indices; both default to zero.
type Connection struct {
	From   string `hcl:"from"`
	To     string `hcl:"to"`
	Output *int   `hcl:"output,optional"`
	Input  *int   `hcl:"input,optional"`
}
