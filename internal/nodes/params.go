// Package nodes provides the built-in node kinds registered with every
// application instance: a packet generator source, a passthrough
// transform, a collector sink, and a dynamic fan-in merge sink.
package nodes

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// intParam reads an optional numeric parameter from an evaluated pipeline
// block, falling back to def when absent.
func intParam(params map[string]cty.Value, name string, def int) (int, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	if v.Type() != cty.Number {
		return 0, fmt.Errorf("parameter %q must be a number, got %s", name, v.Type().FriendlyName())
	}
	var i int
	if err := gocty.FromCtyValue(v, &i); err != nil {
		return 0, fmt.Errorf("parameter %q: %w", name, err)
	}
	return i, nil
}
