package stage

import (
	"fmt"
	"sync/atomic"

	"github.com/vk/packetgrid/internal/packet"
)

// Output is a directional connection slot that produces packets. Symmetric
// to Input: one owner stage, at most one mate.
type Output struct {
	owner *Stage
	index int

	// mate is a weak back-reference; mutated only through Connect and
	// DisconnectOutput.
	mate *Input

	prepared atomic.Bool

	// allocator is assigned during output preparation and read by node
	// logic when producing payloads.
	allocator packet.Allocator
}

func newOutput(owner *Stage, index int) *Output {
	return &Output{owner: owner, index: index}
}

// Owner returns the stage this output belongs to.
func (o *Output) Owner() *Stage { return o.owner }

// Index returns the slot index within the owning stage.
func (o *Output) Index() int { return o.index }

// Mate returns the connected input, or nil.
func (o *Output) Mate() *Input { return o.mate }

// Connected reports whether the output has a mate.
func (o *Output) Connected() bool { return o.mate != nil }

// Prepared reports whether the engine prepared this output for flow.
func (o *Output) Prepared() bool { return o.prepared.Load() }

// SetPrepared is for the engine's prepare/unprepare walks.
func (o *Output) SetPrepared(prepared bool) { o.prepared.Store(prepared) }

// Allocator returns the payload allocator this output must use, or nil
// before preparation.
func (o *Output) Allocator() packet.Allocator { return o.allocator }

// SetAllocator binds the allocator during output preparation.
func (o *Output) SetAllocator(a packet.Allocator) { o.allocator = a }

// Demand returns the demand signalled by the connected input, or
// DemandNone while unconnected.
func (o *Output) Demand() packet.Demand {
	if o.mate == nil {
		return packet.DemandNone
	}
	return o.mate.Demand()
}

// SupplyPacket hands a packet to the mate input. The packet lands on the
// downstream stage's own task queue and an update is requested there once
// it has landed, so the pending slot is only ever touched by its owner.
//
// Supplying against DemandNone is an invariant violation: the producer is
// required to check Demand first. Every delivery consumes the demand
// signal; the consumer re-raises it when it takes the packet. This keeps
// the single pending slot safe even under DemandUnlimited.
func (o *Output) SupplyPacket(p *packet.Packet) {
	m := o.mate
	if m == nil {
		panic(fmt.Sprintf("stage %s: packet supplied on unconnected output %d", o.owner.id, o.index))
	}
	if o.Demand() == packet.DemandNone {
		panic(fmt.Sprintf("stage %s: packet supplied without demand on output %d", o.owner.id, o.index))
	}
	m.demand.Store(int32(packet.DemandNone))
	m.owner.PostTask(func() {
		if m.pending != nil {
			panic(fmt.Sprintf("stage %s: pending packet overwritten on input %d", m.owner.id, m.index))
		}
		m.pending = p
		m.owner.RequestUpdate()
	})
}
