package nodes

import (
	"sync"
	"sync/atomic"

	"github.com/vk/packetgrid/internal/packet"
	"github.com/vk/packetgrid/internal/stage"
	"github.com/zclconf/go-cty/cty"
)

// Merge is a dynamic fan-in sink: it starts with zero inputs and grows or
// shrinks its slot arena as upstream branches attach and detach. Packets
// from all live inputs are consumed and counted in arrival order.
type Merge struct {
	// mu guards the slot bookkeeping, which topology callers mutate from
	// outside the stage's task queue.
	mu    sync.Mutex
	slots []bool

	packets atomic.Int64
	ends    atomic.Int64

	// lastDemand records the most recent demand the machinery reported
	// per slot, e.g. after a flush withdrew it.
	lastDemand map[int]packet.Demand
}

// NewMerge creates a merge sink with no inputs allocated.
func NewMerge() *Merge {
	return &Merge{lastDemand: make(map[int]packet.Demand)}
}

func newMergeNode(name string, params map[string]cty.Value) (stage.Node, error) {
	return NewMerge(), nil
}

// InputCount implements stage.Node: the current arena size.
func (m *Merge) InputCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// OutputCount implements stage.Node.
func (m *Merge) OutputCount() int { return 0 }

// AllocateInput implements stage.DynamicInputNode: reuse the lowest free
// slot, or grow the arena by one.
func (m *Merge) AllocateInput() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, used := range m.slots {
		if !used {
			m.slots[i] = true
			return i
		}
	}
	m.slots = append(m.slots, true)
	return len(m.slots) - 1
}

// ReleaseInput implements stage.DynamicInputNode: free the slot and report
// the new required arena size, the highest still-allocated index plus one.
func (m *Merge) ReleaseInput(index int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[index] = false
	required := 0
	for i, used := range m.slots {
		if used {
			required = i + 1
		}
	}
	m.slots = m.slots[:required]
	return required
}

// UpdateDemand implements stage.DynamicInputNode.
func (m *Merge) UpdateDemand(index int, demand packet.Demand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDemand[index] = demand
}

// Update implements stage.Node.
func (m *Merge) Update(h stage.Host) {
	for i := 0; i < h.InputCount(); i++ {
		in := h.Input(i)
		if in == nil || !in.HasPacket() {
			continue
		}
		if in.PeekPacket().IsEnd() {
			in.TakePacket(packet.DemandNone)
			m.ends.Add(1)
			continue
		}
		p := in.TakePacket(packet.DemandOne)
		m.packets.Add(1)
		p.Release()
	}
}

// FlushInput implements stage.Node; counters survive a flush.
func (m *Merge) FlushInput(index int) {}

// FlushOutput implements stage.Node; a merge sink has no outputs.
func (m *Merge) FlushOutput(index int, holdLast bool) {}

// Packets returns the number of data packets consumed across all inputs.
func (m *Merge) Packets() int64 { return m.packets.Load() }

// Ends returns the number of end-of-stream markers consumed.
func (m *Merge) Ends() int64 { return m.ends.Load() }

// LastDemand returns the demand last reported for a slot by the
// machinery, and whether any was reported.
func (m *Merge) LastDemand(index int) (packet.Demand, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.lastDemand[index]
	return d, ok
}
