package nodes

import (
	"github.com/vk/packetgrid/internal/packet"
	"github.com/vk/packetgrid/internal/stage"
	"github.com/zclconf/go-cty/cty"
)

// Generator is a source producing a fixed number of patterned packets
// followed by an end-of-stream marker. Production is strictly
// demand-driven: one packet per demand signalled downstream.
type Generator struct {
	count int
	size  int

	produced int
	endSent  bool
	stopped  bool
}

// NewGenerator creates a generator producing count packets of size bytes.
func NewGenerator(count, size int) *Generator {
	return &Generator{count: count, size: size}
}

func newGeneratorNode(name string, params map[string]cty.Value) (stage.Node, error) {
	count, err := intParam(params, "count", 10)
	if err != nil {
		return nil, err
	}
	size, err := intParam(params, "size", 256)
	if err != nil {
		return nil, err
	}
	return NewGenerator(count, size), nil
}

// InputCount implements stage.Node.
func (g *Generator) InputCount() int { return 0 }

// OutputCount implements stage.Node.
func (g *Generator) OutputCount() int { return 1 }

// Update implements stage.Node.
func (g *Generator) Update(h stage.Host) {
	out := h.Output(0)
	for !g.stopped && !g.endSent && out.Demand() != packet.DemandNone {
		if g.produced == g.count {
			out.SupplyPacket(packet.End())
			g.endSent = true
			return
		}

		alloc := out.Allocator()
		payload, err := alloc.AllocatePayload(g.size)
		if err != nil {
			// Transient exhaustion: drop this round and retry on the next
			// demand or update.
			h.Logger().Warn("Payload allocation failed.", "error", err)
			h.RequestUpdate()
			return
		}
		for i := range payload {
			payload[i] = byte(g.produced + i)
		}
		out.SupplyPacket(packet.New(payload, false, alloc))
		g.produced++
	}
}

// FlushInput implements stage.Node; a generator has no inputs.
func (g *Generator) FlushInput(index int) {}

// FlushOutput implements stage.Node. Production stops for good; a flushed
// generator does not restart.
func (g *Generator) FlushOutput(index int, holdLast bool) {
	g.stopped = true
}

// Produced returns how many data packets have been supplied so far.
func (g *Generator) Produced() int { return g.produced }
