package stage

import (
	"sync/atomic"

	"github.com/vk/packetgrid/internal/packet"
)

// Input is a directional connection slot that receives packets. It belongs
// to exactly one stage and has at most one mate Output. The pending packet
// is mutated only from the owning stage's task queue; the demand signal is
// atomic because the upstream producer reads it from its own loop.
type Input struct {
	owner *Stage
	index int

	// mate is a weak back-reference; mutated only through Connect and
	// DisconnectInput, never owned.
	mate *Output

	prepared atomic.Bool
	demand   atomic.Int32

	// pending is the at-most-one packet waiting for the node. Owning loop
	// only.
	pending *packet.Packet
}

func newInput(owner *Stage, index int) *Input {
	return &Input{owner: owner, index: index}
}

// Owner returns the stage this input belongs to.
func (in *Input) Owner() *Stage { return in.owner }

// Index returns the slot index within the owning stage.
func (in *Input) Index() int { return in.index }

// Mate returns the connected output, or nil.
func (in *Input) Mate() *Output { return in.mate }

// Connected reports whether the input has a mate.
func (in *Input) Connected() bool { return in.mate != nil }

// Prepared reports whether the engine prepared this input for flow.
func (in *Input) Prepared() bool { return in.prepared.Load() }

// SetPrepared is for the engine's prepare/unprepare walks. A prepared
// input must never be disconnected.
func (in *Input) SetPrepared(prepared bool) { in.prepared.Store(prepared) }

// Demand returns the demand currently signalled on this input. Meaningless
// while unconnected.
func (in *Input) Demand() packet.Demand {
	return packet.Demand(in.demand.Load())
}

// SetDemand updates the demand signal and wakes the upstream producer when
// the value changed.
func (in *Input) SetDemand(demand packet.Demand) {
	if packet.Demand(in.demand.Swap(int32(demand))) == demand {
		return
	}
	if m := in.mate; m != nil && demand != packet.DemandNone {
		m.owner.RequestUpdate()
	}
}

// HasPacket reports whether a packet is pending. Owning loop only.
func (in *Input) HasPacket() bool { return in.pending != nil }

// PeekPacket returns the pending packet without consuming it. Owning loop
// only.
func (in *Input) PeekPacket() *packet.Packet { return in.pending }

// TakePacket consumes the pending packet and signals the next demand
// upstream. Returns nil when nothing is pending. Owning loop only.
func (in *Input) TakePacket(nextDemand packet.Demand) *packet.Packet {
	p := in.pending
	in.pending = nil
	in.SetDemand(nextDemand)
	return p
}

// flush releases the pending packet and clears demand. Owning loop only.
func (in *Input) flush() {
	if in.pending != nil {
		in.pending.Release()
		in.pending = nil
	}
	in.demand.Store(int32(packet.DemandNone))
}
