// Package engine drives a prepared graph: it readies sink-reachable
// connections for flow, reverses that during orderly teardown, and
// propagates flushes downstream to every reachable sink. The graph and
// stage layers only ever see the engine through these entry points, so an
// alternative driver can replace it wholesale.
package engine

import (
	"context"
	"log/slog"

	"github.com/vk/packetgrid/internal/ctxlog"
	"github.com/vk/packetgrid/internal/joiner"
	"github.com/vk/packetgrid/internal/packet"
	"github.com/vk/packetgrid/internal/stage"
)

// Engine walks connection chains. It holds the payload allocator assigned
// to outputs during preparation.
type Engine struct {
	logger    *slog.Logger
	allocator packet.Allocator
}

// Option configures an Engine.
type Option func(*Engine)

// WithAllocator overrides the default heap-backed payload allocator.
func WithAllocator(a packet.Allocator) Option {
	return func(e *Engine) { e.allocator = a }
}

// New creates an engine. The logger travels in ctx via ctxlog.
func New(ctx context.Context, opts ...Option) *Engine {
	e := &Engine{
		logger:    ctxlog.FromContext(ctx),
		allocator: packet.NewHeapAllocator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PrepareInput readies the addressed input and everything upstream of it
// for flow. Called once per sink-reachable input before flow starts.
//
// The walk is breadth-first over an explicit queue: each visited input and
// its mate output are marked prepared, the output is bound to the engine's
// allocator, initial demand is seeded, and the upstream stage is woken so
// a processing step runs whenever new demand or packet availability
// appears. Inputs already prepared by an earlier walk are skipped, so
// shared upstream chains are prepared once.
func (e *Engine) PrepareInput(ih stage.InputHandle) {
	queue := []*stage.Input{ih.Get()}
	for len(queue) > 0 {
		in := queue[0]
		queue = queue[1:]

		if in.Prepared() {
			continue
		}
		in.SetPrepared(true)

		o := in.Mate()
		if o == nil {
			continue
		}
		o.SetPrepared(true)
		if o.Allocator() == nil {
			o.SetAllocator(e.allocator)
		}

		up := o.Owner()
		for i := 0; i < up.InputCount(); i++ {
			if slot := up.Input(i); slot != nil && slot.Connected() && !slot.Prepared() {
				queue = append(queue, slot)
			}
		}

		e.logger.Debug("Connection prepared.",
			"upstream", up.ID(), "output", o.Index(),
			"downstream", in.Owner().ID(), "input", in.Index())
		in.SetDemand(packet.DemandOne)
		notifyDynamicDemand(in, packet.DemandOne)
	}
}

// notifyDynamicDemand tells a dynamic fan-in node that the machinery changed
// the demand on one of its slots underneath it.
func notifyDynamicDemand(in *stage.Input, d packet.Demand) {
	if dyn, ok := in.Owner().Node().(stage.DynamicInputNode); ok {
		dyn.UpdateDemand(in.Index(), d)
	}
}

// UnprepareInput reverses PrepareInput during orderly teardown, before the
// connections involved are disconnected. Demand is withdrawn and prepared
// flags cleared along the same upstream walk.
func (e *Engine) UnprepareInput(ih stage.InputHandle) {
	queue := []*stage.Input{ih.Get()}
	for len(queue) > 0 {
		in := queue[0]
		queue = queue[1:]

		if !in.Prepared() {
			continue
		}
		in.SetDemand(packet.DemandNone)
		notifyDynamicDemand(in, packet.DemandNone)
		in.SetPrepared(false)

		o := in.Mate()
		if o == nil {
			continue
		}
		o.SetPrepared(false)

		up := o.Owner()
		for i := 0; i < up.InputCount(); i++ {
			if slot := up.Input(i); slot != nil && slot.Prepared() {
				queue = append(queue, slot)
			}
		}

		e.logger.Debug("Connection unprepared.",
			"upstream", up.ID(), "output", o.Index(),
			"downstream", in.Owner().ID(), "input", in.Index())
	}
}

// FlushOutput propagates a flush downstream from the addressed output to
// every reachable sink: the output itself, its mate input, that stage's
// outputs, and so on. Every per-stage flush along the way is issued
// without waiting for earlier ones, so sibling branches flush
// concurrently; done fires only once every issued completion callback has
// fired.
func (e *Engine) FlushOutput(oh stage.OutputHandle, holdLast bool, done func()) {
	j := joiner.New()
	visited := map[*stage.Output]bool{}
	queue := []*stage.Output{oh.Get()}

	for len(queue) > 0 {
		o := queue[0]
		queue = queue[1:]
		if visited[o] {
			continue
		}
		visited[o] = true

		o.Owner().FlushOutput(o.Index(), holdLast, j.Spawn())

		in := o.Mate()
		if in == nil {
			continue
		}
		down := in.Owner()
		down.FlushInput(in.Index(), j.Spawn())
		for i := 0; i < down.OutputCount(); i++ {
			if out := down.Output(i); out != nil {
				queue = append(queue, out)
			}
		}
	}

	e.logger.Debug("Flush fan-out issued.", "flushes", len(visited))
	j.WhenJoined(done)
}
