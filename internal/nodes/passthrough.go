package nodes

import (
	"github.com/vk/packetgrid/internal/packet"
	"github.com/vk/packetgrid/internal/stage"
	"github.com/zclconf/go-cty/cty"
)

// Passthrough forwards packets from its single input to its single output
// unchanged. It holds nothing between steps: a packet moves only when the
// downstream side has signalled demand, otherwise it stays pending on the
// input until the next wake-up.
type Passthrough struct{}

// NewPassthrough creates a passthrough transform.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func newPassthroughNode(name string, params map[string]cty.Value) (stage.Node, error) {
	return NewPassthrough(), nil
}

// InputCount implements stage.Node.
func (p *Passthrough) InputCount() int { return 1 }

// OutputCount implements stage.Node.
func (p *Passthrough) OutputCount() int { return 1 }

// Update implements stage.Node.
func (p *Passthrough) Update(h stage.Host) {
	in, out := h.Input(0), h.Output(0)
	if in.HasPacket() && out.Demand() != packet.DemandNone {
		out.SupplyPacket(in.TakePacket(packet.DemandOne))
	}
}

// FlushInput implements stage.Node; nothing is held node-side.
func (p *Passthrough) FlushInput(index int) {}

// FlushOutput implements stage.Node; nothing is held node-side.
func (p *Passthrough) FlushOutput(index int, holdLast bool) {}
