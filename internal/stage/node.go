package stage

import (
	"log/slog"

	"github.com/vk/packetgrid/internal/packet"
)

// Node is the contract a processing unit implements to be hosted by a
// Stage. The hosting machinery has no opinion on what a node does to
// packets; it only drives the processing step and the flush hooks, always
// from the stage's own serialized task queue.
type Node interface {
	// InputCount returns the number of input slots the node requires at
	// creation time. Zero marks the node as a graph source.
	InputCount() int

	// OutputCount returns the number of output slots the node requires at
	// creation time. Zero marks the node as a graph sink.
	OutputCount() int

	// Update is the processing step. It inspects the host's inputs for
	// packets and demand, runs node logic, and supplies packets to outputs.
	// At most one Update per stage is ever in flight.
	Update(host Host)

	// FlushInput discards node-side state associated with the given input.
	// The pending packet has already been released by the stage.
	FlushInput(index int)

	// FlushOutput stops production on the given output and discards
	// in-flight state. When holdLast is set, the node retains the most
	// recent unit for later re-display.
	FlushOutput(index int, holdLast bool)
}

// DynamicInputNode is implemented by nodes whose input count changes at
// runtime, such as multi-stream sinks.
type DynamicInputNode interface {
	Node

	// AllocateInput reserves a new input slot and returns its index.
	AllocateInput() int

	// ReleaseInput frees the slot at index and returns the new required
	// slot count: the highest still-allocated index plus one.
	ReleaseInput(index int) int

	// UpdateDemand notifies the node that the machinery changed the demand
	// on one of its dynamic inputs underneath it, e.g. during a flush.
	UpdateDemand(index int, demand packet.Demand)
}

// Host is the view of a Stage that a Node sees during its processing step.
type Host interface {
	InputCount() int
	Input(index int) *Input
	OutputCount() int
	Output(index int) *Output

	// RequestUpdate schedules another processing step. Safe from any
	// goroutine, so nodes may hand it to their own asynchronous workers.
	RequestUpdate()

	// Logger returns the stage-scoped logger.
	Logger() *slog.Logger
}
