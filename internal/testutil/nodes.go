package testutil

import (
	"sync"

	"github.com/vk/packetgrid/internal/packet"
	"github.com/vk/packetgrid/internal/stage"
)

// Recorder accumulates ordered event strings from instrumented fake nodes.
// Safe for concurrent use; events from stages on different loops interleave
// in real completion order.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Record appends one event.
func (r *Recorder) Record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// FakeSource is a bounded, demand-driven source node for tests. It produces
// Limit packets of Size bytes followed by an end-of-stream marker, and
// reports flush events to Rec when set.
type FakeSource struct {
	Name  string
	Limit int
	Size  int
	Rec   *Recorder

	produced int
	endSent  bool
	stopped  bool
}

// InputCount implements stage.Node.
func (f *FakeSource) InputCount() int { return 0 }

// OutputCount implements stage.Node.
func (f *FakeSource) OutputCount() int { return 1 }

// Update implements stage.Node.
func (f *FakeSource) Update(h stage.Host) {
	out := h.Output(0)
	for !f.stopped && !f.endSent && out.Demand() != packet.DemandNone {
		if f.produced == f.Limit {
			out.SupplyPacket(packet.End())
			f.endSent = true
			return
		}
		payload, err := out.Allocator().AllocatePayload(f.Size)
		if err != nil {
			h.RequestUpdate()
			return
		}
		out.SupplyPacket(packet.New(payload, false, out.Allocator()))
		f.produced++
	}
}

// FlushInput implements stage.Node; a source has no inputs.
func (f *FakeSource) FlushInput(index int) {}

// FlushOutput implements stage.Node.
func (f *FakeSource) FlushOutput(index int, holdLast bool) {
	f.stopped = true
	if f.Rec != nil {
		f.Rec.Record(f.Name + ".FlushOutput")
	}
}

// Produced returns how many data packets have been supplied.
func (f *FakeSource) Produced() int { return f.produced }

// FakeTransform is a one-in one-out node forwarding packets unchanged. It
// reports flush events to Rec when set.
type FakeTransform struct {
	Name string
	Rec  *Recorder

	forwarded int
}

// InputCount implements stage.Node.
func (f *FakeTransform) InputCount() int { return 1 }

// OutputCount implements stage.Node.
func (f *FakeTransform) OutputCount() int { return 1 }

// Update implements stage.Node.
func (f *FakeTransform) Update(h stage.Host) {
	in, out := h.Input(0), h.Output(0)
	if in.HasPacket() && out.Demand() != packet.DemandNone {
		p := in.TakePacket(packet.DemandOne)
		f.forwarded++
		out.SupplyPacket(p)
	}
}

// FlushInput implements stage.Node.
func (f *FakeTransform) FlushInput(index int) {
	if f.Rec != nil {
		f.Rec.Record(f.Name + ".FlushInput")
	}
}

// FlushOutput implements stage.Node.
func (f *FakeTransform) FlushOutput(index int, holdLast bool) {
	if f.Rec != nil {
		f.Rec.Record(f.Name + ".FlushOutput")
	}
}

// Forwarded returns how many packets passed through.
func (f *FakeTransform) Forwarded() int { return f.forwarded }

// FakeSink is a one-input sink consuming everything offered. It counts
// packets and bytes, closes its completion channel on the end-of-stream
// marker, and reports flush events to Rec when set.
type FakeSink struct {
	Name string
	Rec  *Recorder

	mu      sync.Mutex
	packets int
	bytes   int
	done    chan struct{}
	once    sync.Once
}

// NewFakeSink creates a sink with an initialized completion channel.
func NewFakeSink(name string, rec *Recorder) *FakeSink {
	return &FakeSink{Name: name, Rec: rec, done: make(chan struct{})}
}

// InputCount implements stage.Node.
func (f *FakeSink) InputCount() int { return 1 }

// OutputCount implements stage.Node.
func (f *FakeSink) OutputCount() int { return 0 }

// Update implements stage.Node.
func (f *FakeSink) Update(h stage.Host) {
	in := h.Input(0)
	for in.HasPacket() {
		if in.PeekPacket().IsEnd() {
			in.TakePacket(packet.DemandNone).Release()
			f.once.Do(func() { close(f.done) })
			return
		}
		p := in.TakePacket(packet.DemandOne)
		f.mu.Lock()
		f.packets++
		f.bytes += p.Size()
		f.mu.Unlock()
		p.Release()
	}
}

// FlushInput implements stage.Node.
func (f *FakeSink) FlushInput(index int) {
	if f.Rec != nil {
		f.Rec.Record(f.Name + ".FlushInput")
	}
}

// FlushOutput implements stage.Node; a sink has no outputs.
func (f *FakeSink) FlushOutput(index int, holdLast bool) {}

// Done is closed once the end-of-stream marker has been consumed.
func (f *FakeSink) Done() <-chan struct{} { return f.done }

// Packets returns the number of data packets consumed.
func (f *FakeSink) Packets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packets
}

// Bytes returns the number of payload bytes consumed.
func (f *FakeSink) Bytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bytes
}
