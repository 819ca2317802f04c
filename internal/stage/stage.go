// Package stage hosts a single processing node: it owns the node's
// connection endpoints, serializes all mutation of the node through a
// coalescing task queue bound to one run loop, and exposes the
// prepare/flush/shutdown lifecycle the graph builds on.
package stage

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vk/packetgrid/internal/packet"
	"github.com/vk/packetgrid/internal/runloop"
)

// State describes where a stage is in its lifecycle. It is exposed for
// observability; all decisions inside the stage are driven by the update
// counter and the shutdown flag, not by reading State.
type State int32

const (
	// StateIdle means no processing step is scheduled or running.
	StateIdle State = iota
	// StateUpdateScheduled means an update request arrived and the
	// processing task is queued but has not started.
	StateUpdateScheduled
	// StateUpdating means the processing step is running right now.
	StateUpdating
	// StateShuttingDown means ShutDown was called and queued task bodies
	// are being suppressed.
	StateShuttingDown
	// StateShutDown is terminal.
	StateShutDown
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUpdateScheduled:
		return "update-scheduled"
	case StateUpdating:
		return "updating"
	case StateShuttingDown:
		return "shutting-down"
	case StateShutDown:
		return "shut-down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// task is one queued unit of work. Bodies of ordinary tasks are suppressed
// once the stage shuts down; completion-notification tasks run regardless.
type task struct {
	fn               func()
	runsWhenShutDown bool
}

// Stage hosts one Node. All node mutation funnels through the stage's task
// queue, which drains on exactly one run loop; distinct stages may drain on
// distinct loops.
type Stage struct {
	id     string
	node   Node
	loop   *runloop.Loop
	logger *slog.Logger

	// mu guards the task queue and the suspended/draining flags. It is
	// never held across a task body or user callback.
	mu        sync.Mutex
	tasks     []task
	suspended bool
	draining  bool

	// updates coalesces RequestUpdate calls: the 0->1 transition schedules
	// the processing task, everything else piggybacks on it.
	updates      atomic.Int32
	state        atomic.Int32
	shuttingDown atomic.Bool

	// inputs is an arena of optional slots; released dynamic slots are nil.
	inputs  []*Input
	outputs []*Output
}

// New creates a stage hosting the given node, with endpoint slots sized
// from the node's input/output counts.
func New(id string, n Node, loop *runloop.Loop, logger *slog.Logger) *Stage {
	s := &Stage{
		id:     id,
		node:   n,
		loop:   loop,
		logger: logger.With("stage", id),
	}
	for i := 0; i < n.InputCount(); i++ {
		s.inputs = append(s.inputs, newInput(s, i))
	}
	for i := 0; i < n.OutputCount(); i++ {
		s.outputs = append(s.outputs, newOutput(s, i))
	}
	s.logger.Debug("Stage created.", "inputs", len(s.inputs), "outputs", len(s.outputs))
	return s
}

// ID returns the stage's identifier.
func (s *Stage) ID() string { return s.id }

// Node returns the hosted node.
func (s *Stage) Node() Node { return s.node }

// Loop returns the run loop this stage is bound to.
func (s *Stage) Loop() *runloop.Loop { return s.loop }

// Logger implements Host.
func (s *Stage) Logger() *slog.Logger { return s.logger }

// State returns the stage's current lifecycle state.
func (s *Stage) State() State { return State(s.state.Load()) }

// InputCount implements Host. For dynamic fan-in nodes this is the arena
// size; released slots still count and read as nil.
func (s *Stage) InputCount() int { return len(s.inputs) }

// Input implements Host.
func (s *Stage) Input(index int) *Input { return s.inputs[index] }

// OutputCount implements Host.
func (s *Stage) OutputCount() int { return len(s.outputs) }

// Output implements Host.
func (s *Stage) Output(index int) *Output { return s.outputs[index] }

// PostTask queues fn on the stage's serialized task queue. Safe from any
// goroutine. The body is suppressed if the stage shuts down first.
func (s *Stage) PostTask(fn func()) {
	s.post(task{fn: fn})
}

// PostShutdownTask queues fn like PostTask, but the body runs even after
// ShutDown. Used to signal completion to interested owners.
func (s *Stage) PostShutdownTask(fn func()) {
	s.post(task{fn: fn, runsWhenShutDown: true})
}

func (s *Stage) post(t task) {
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	schedule := !s.suspended && !s.draining
	if schedule {
		s.draining = true
	}
	s.mu.Unlock()

	if schedule {
		s.loop.Post(s.drain)
	}
}

// drain pops and runs queued tasks until the queue empties or the stage is
// suspended. Runs only on the stage's own loop.
func (s *Stage) drain() {
	for {
		s.mu.Lock()
		if s.suspended || len(s.tasks) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		if !s.shuttingDown.Load() || t.runsWhenShutDown {
			t.fn()
		}
	}
}

// RequestUpdate schedules the node's processing step. Any number of
// concurrent calls coalesce into a single pending step: only the 0->1
// transition of the update counter enqueues work.
func (s *Stage) RequestUpdate() {
	if s.shuttingDown.Load() {
		return
	}
	if s.updates.Add(1) == 1 {
		s.state.CompareAndSwap(int32(StateIdle), int32(StateUpdateScheduled))
		s.PostTask(s.runUpdates)
	}
}

// runUpdates is the coalesced processing task. It canonicalizes the counter
// to one, runs the node step, and loops while further requests arrived
// during the step. No request is dropped; no step runs beyond what the
// requests require.
func (s *Stage) runUpdates() {
	for {
		s.updates.Store(1)
		s.state.Store(int32(StateUpdating))
		s.node.Update(s)
		if s.updates.Add(-1) == 0 {
			s.state.CompareAndSwap(int32(StateUpdating), int32(StateIdle))
			return
		}
	}
}

// Acquire suspends task execution on this stage and invokes callback once
// the suspension has taken effect. Tasks queued afterwards wait until
// Release. Acquire takes effect even on a stage that already shut down, so
// barrier participants can always be counted down.
func (s *Stage) Acquire(callback func()) {
	s.PostShutdownTask(func() {
		s.mu.Lock()
		s.suspended = true
		s.mu.Unlock()
		s.logger.Debug("Stage acquired.")
		callback()
	})
}

// Release ends a suspension started by Acquire and resumes the task queue.
// Releasing a stage that is not suspended is a no-op.
func (s *Stage) Release() {
	s.mu.Lock()
	if !s.suspended {
		s.mu.Unlock()
		return
	}
	s.suspended = false
	schedule := len(s.tasks) > 0 && !s.draining
	if schedule {
		s.draining = true
	}
	s.mu.Unlock()

	s.logger.Debug("Stage released.")
	if schedule {
		s.loop.Post(s.drain)
	}
}

// ShutDown moves the stage to its terminal state. Idempotent and
// non-revocable: bodies of queued-but-unexecuted ordinary tasks are
// discarded, completion-notification tasks still run.
func (s *Stage) ShutDown() {
	if s.shuttingDown.Swap(true) {
		return
	}
	s.logger.Debug("Stage shutting down.")
	s.state.Store(int32(StateShuttingDown))
	s.PostShutdownTask(func() {
		s.state.Store(int32(StateShutDown))
		s.logger.Debug("Stage shut down.")
	})
}

// FlushInput discards the pending packet and node-side state of one input.
// The flush body runs on the stage's queue; done fires afterwards, or
// immediately after suppression if the stage shut down first.
func (s *Stage) FlushInput(index int, done func()) {
	in := s.inputs[index]
	if in == nil {
		panic(fmt.Sprintf("stage %s: flush of released input %d", s.id, index))
	}
	s.PostTask(func() {
		in.flush()
		s.node.FlushInput(index)
		if dyn, ok := s.node.(DynamicInputNode); ok {
			dyn.UpdateDemand(index, packet.DemandNone)
		}
		s.logger.Debug("Input flushed.", "input", index)
	})
	if done != nil {
		s.PostShutdownTask(done)
	}
}

// FlushOutput tells the node to stop producing on one output and discard
// in-flight state, optionally holding the last unit for re-display.
func (s *Stage) FlushOutput(index int, holdLast bool, done func()) {
	if s.outputs[index] == nil {
		panic(fmt.Sprintf("stage %s: flush of missing output %d", s.id, index))
	}
	s.PostTask(func() {
		s.node.FlushOutput(index, holdLast)
		s.logger.Debug("Output flushed.", "output", index, "holdLast", holdLast)
	})
	if done != nil {
		s.PostShutdownTask(done)
	}
}

// AllocateInput grows the input arena by one slot for a dynamic fan-in
// node and returns the new input. Fatal on nodes without dynamic support.
func (s *Stage) AllocateInput() *Input {
	dyn, ok := s.node.(DynamicInputNode)
	if !ok {
		panic(fmt.Sprintf("stage %s: node does not support dynamic inputs", s.id))
	}
	index := dyn.AllocateInput()
	for len(s.inputs) <= index {
		s.inputs = append(s.inputs, nil)
	}
	if s.inputs[index] != nil {
		panic(fmt.Sprintf("stage %s: node allocated occupied input slot %d", s.id, index))
	}
	in := newInput(s, index)
	s.inputs[index] = in
	s.logger.Debug("Dynamic input allocated.", "input", index)
	return in
}

// ReleaseInput frees a dynamic input slot and shrinks the arena to the
// node-reported required size. The slot must be disconnected and
// unprepared.
func (s *Stage) ReleaseInput(index int) {
	dyn, ok := s.node.(DynamicInputNode)
	if !ok {
		panic(fmt.Sprintf("stage %s: node does not support dynamic inputs", s.id))
	}
	in := s.inputs[index]
	if in == nil {
		panic(fmt.Sprintf("stage %s: release of already-released input %d", s.id, index))
	}
	if in.Connected() || in.Prepared() {
		panic(fmt.Sprintf("stage %s: release of connected input %d", s.id, index))
	}
	required := dyn.ReleaseInput(index)
	s.inputs[index] = nil
	for i := required; i < len(s.inputs); i++ {
		if s.inputs[i] != nil {
			panic(fmt.Sprintf("stage %s: node reported required size %d below allocated slot %d", s.id, required, i))
		}
	}
	s.inputs = s.inputs[:required]
	s.logger.Debug("Dynamic input released.", "input", index, "requiredSize", required)
}

// DisconnectAll clears every live connection on this stage. Endpoints must
// be unprepared; used by graph removal after unprepare.
func (s *Stage) DisconnectAll() {
	for _, in := range s.inputs {
		if in != nil {
			DisconnectInput(in)
		}
	}
	for _, out := range s.outputs {
		if out != nil {
			DisconnectOutput(out)
		}
	}
}
