package nodes

import (
	"sync"
	"sync/atomic"

	"github.com/vk/packetgrid/internal/packet"
	"github.com/vk/packetgrid/internal/stage"
	"github.com/zclconf/go-cty/cty"
)

// Collector is a sink that consumes and counts packets, releasing each one
// back to its allocator. Done is closed when the end-of-stream marker
// arrives.
type Collector struct {
	packets atomic.Int64
	bytes   atomic.Int64

	done     chan struct{}
	doneOnce sync.Once
}

// NewCollector creates a collector sink.
func NewCollector() *Collector {
	return &Collector{done: make(chan struct{})}
}

func newCollectorNode(name string, params map[string]cty.Value) (stage.Node, error) {
	return NewCollector(), nil
}

// InputCount implements stage.Node.
func (c *Collector) InputCount() int { return 1 }

// OutputCount implements stage.Node.
func (c *Collector) OutputCount() int { return 0 }

// Update implements stage.Node.
func (c *Collector) Update(h stage.Host) {
	in := h.Input(0)
	if !in.HasPacket() {
		return
	}
	if in.PeekPacket().IsEnd() {
		in.TakePacket(packet.DemandNone)
		c.doneOnce.Do(func() { close(c.done) })
		return
	}
	p := in.TakePacket(packet.DemandOne)
	c.packets.Add(1)
	c.bytes.Add(int64(p.Size()))
	p.Release()
}

// FlushInput implements stage.Node; counters survive a flush.
func (c *Collector) FlushInput(index int) {}

// FlushOutput implements stage.Node; a collector has no outputs.
func (c *Collector) FlushOutput(index int, holdLast bool) {}

// Done is closed once the end-of-stream marker has been consumed.
func (c *Collector) Done() <-chan struct{} { return c.done }

// Packets returns the number of data packets consumed.
func (c *Collector) Packets() int64 { return c.packets.Load() }

// Bytes returns the total payload bytes consumed.
func (c *Collector) Bytes() int64 { return c.bytes.Load() }
