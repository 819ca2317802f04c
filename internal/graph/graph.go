// Package graph owns the set of live stages, performs all topology
// mutation, coordinates cross-stage synchronized tasks, and drives
// graph-wide teardown.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/packetgrid/internal/ctxlog"
	"github.com/vk/packetgrid/internal/joiner"
	"github.com/vk/packetgrid/internal/runloop"
	"github.com/vk/packetgrid/internal/stage"
)

// Graph owns the authoritative stage set plus the derived source and sink
// index sets, kept consistent with endpoint counts at every topology
// mutation.
type Graph struct {
	logger *slog.Logger

	// defaultLoop hosts every stage that is not explicitly bound
	// elsewhere. When the graph created the loop itself, Reset stops it.
	defaultLoop *runloop.Loop
	ownsLoop    bool

	// mu guards the three sets below; it is never held across stage task
	// execution or user callbacks.
	mu      sync.Mutex
	stages  map[*stage.Stage]struct{}
	sources map[*stage.Stage]struct{}
	sinks   map[*stage.Stage]struct{}
}

// Option configures a Graph.
type Option func(*Graph)

// WithDefaultLoop binds the graph's default execution context to a
// caller-owned loop. The caller keeps responsibility for stopping it.
func WithDefaultLoop(l *runloop.Loop) Option {
	return func(g *Graph) {
		g.defaultLoop = l
		g.ownsLoop = false
	}
}

// New creates an empty graph. The logger travels in ctx via ctxlog.
func New(ctx context.Context, opts ...Option) *Graph {
	g := &Graph{
		logger:  ctxlog.FromContext(ctx),
		stages:  make(map[*stage.Stage]struct{}),
		sources: make(map[*stage.Stage]struct{}),
		sinks:   make(map[*stage.Stage]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.defaultLoop == nil {
		g.defaultLoop = runloop.New()
		g.ownsLoop = true
	}
	return g
}

// AddOption configures one Add call.
type AddOption func(*addConfig)

type addConfig struct {
	name string
	loop *runloop.Loop
}

// WithName assigns a stable stage identifier instead of a generated one.
func WithName(name string) AddOption {
	return func(c *addConfig) { c.name = name }
}

// WithLoop binds the new stage to a specific execution context instead of
// the graph default.
func WithLoop(l *runloop.Loop) AddOption {
	return func(c *addConfig) { c.loop = l }
}

// Add registers a node with the graph, classifies its stage as source or
// sink by endpoint counts, binds it to an execution context, and returns a
// handle addressing it.
func (g *Graph) Add(n stage.Node, opts ...AddOption) stage.NodeHandle {
	if n == nil {
		panic("graph: add of nil node")
	}
	cfg := addConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = uuid.NewString()
	}
	if cfg.loop == nil {
		cfg.loop = g.defaultLoop
	}

	s := stage.New(cfg.name, n, cfg.loop, g.logger)

	g.mu.Lock()
	g.stages[s] = struct{}{}
	g.classifyLocked(s)
	g.mu.Unlock()

	g.logger.Debug("Node added to graph.", "stage", s.ID(),
		"inputs", s.InputCount(), "outputs", s.OutputCount())
	return s.Handle()
}

// classifyLocked refreshes the source/sink index entries for s. Caller
// holds g.mu.
func (g *Graph) classifyLocked(s *stage.Stage) {
	if s.InputCount() == 0 {
		g.sources[s] = struct{}{}
	} else {
		delete(g.sources, s)
	}
	if s.OutputCount() == 0 {
		g.sinks[s] = struct{}{}
	} else {
		delete(g.sinks, s)
	}
}

// Connect mates the addressed output and input, atomically replacing any
// existing mate on either side. Fatal on null handles.
func (g *Graph) Connect(oh stage.OutputHandle, ih stage.InputHandle) {
	stage.Connect(oh.Get(), ih.Get())
}

// ConnectNodes is a convenience wrapper mating the first unconnected
// output of from with the first unconnected input of to.
func (g *Graph) ConnectNodes(from, to stage.NodeHandle) {
	o := firstFreeOutput(from.Stage())
	in := firstFreeInput(to.Stage())
	if o == nil || in == nil {
		panic(fmt.Sprintf("graph: no free endpoints connecting %s -> %s", from.ID(), to.ID()))
	}
	stage.Connect(o, in)
}

func firstFreeOutput(s *stage.Stage) *stage.Output {
	for i := 0; i < s.OutputCount(); i++ {
		if o := s.Output(i); o != nil && !o.Connected() {
			return o
		}
	}
	return nil
}

func firstFreeInput(s *stage.Stage) *stage.Input {
	for i := 0; i < s.InputCount(); i++ {
		if in := s.Input(i); in != nil && !in.Connected() {
			return in
		}
	}
	return nil
}

// DisconnectInput clears the addressed input's connection. Fatal on a null
// handle or a prepared endpoint; a no-op when unconnected.
func (g *Graph) DisconnectInput(ih stage.InputHandle) {
	stage.DisconnectInput(ih.Get())
}

// DisconnectOutput clears the addressed output's connection. Fatal on a
// null handle or a prepared endpoint; a no-op when unconnected.
func (g *Graph) DisconnectOutput(oh stage.OutputHandle) {
	stage.DisconnectOutput(oh.Get())
}

// RemoveNode disconnects all of the node's endpoints, drops its stage from
// every index set, and shuts the stage down. The disconnect-first ordering
// means removal itself never trips the prepared-disconnect check; a still
// prepared endpoint is the caller's bug and stays fatal.
func (g *Graph) RemoveNode(h stage.NodeHandle) {
	s := h.Stage()

	g.mu.Lock()
	_, ok := g.stages[s]
	g.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("graph: removal of unknown node %s", s.ID()))
	}

	s.DisconnectAll()

	g.mu.Lock()
	delete(g.stages, s)
	delete(g.sources, s)
	delete(g.sinks, s)
	g.mu.Unlock()

	s.ShutDown()
	g.logger.Debug("Node removed from graph.", "stage", s.ID())
}

// RemoveNodesConnectedToNode removes the addressed node and every node
// reachable from it through live connections, in either direction. The
// walk is breadth-first over an explicit work queue so long chains cannot
// grow the call stack.
func (g *Graph) RemoveNodesConnectedToNode(h stage.NodeHandle) {
	start := h.Stage()
	visited := map[*stage.Stage]bool{start: true}
	order := []*stage.Stage{start}
	queue := []*stage.Stage{start}

	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]

		for i := 0; i < s.InputCount(); i++ {
			if in := s.Input(i); in != nil && in.Connected() {
				up := in.Mate().Owner()
				if !visited[up] {
					visited[up] = true
					order = append(order, up)
					queue = append(queue, up)
				}
			}
		}
		for i := 0; i < s.OutputCount(); i++ {
			if o := s.Output(i); o != nil && o.Connected() {
				down := o.Mate().Owner()
				if !visited[down] {
					visited[down] = true
					order = append(order, down)
					queue = append(queue, down)
				}
			}
		}
	}

	g.logger.Debug("Removing connected subgraph.", "stage", start.ID(), "count", len(order))
	for _, s := range order {
		g.RemoveNode(s.Handle())
	}
}

// RemoveNodesConnectedToOutput removes every node reachable downstream of
// the addressed output. A no-op when the output is unconnected.
func (g *Graph) RemoveNodesConnectedToOutput(oh stage.OutputHandle) {
	o := oh.Get()
	if !o.Connected() {
		return
	}
	g.RemoveNodesConnectedToNode(o.Mate().Owner().Handle())
}

// RemoveNodesConnectedToInput removes every node reachable upstream of the
// addressed input. A no-op when the input is unconnected.
func (g *Graph) RemoveNodesConnectedToInput(ih stage.InputHandle) {
	in := ih.Get()
	if !in.Connected() {
		return
	}
	g.RemoveNodesConnectedToNode(in.Mate().Owner().Handle())
}

// AllocateInput grows a dynamic fan-in node's input arena by one slot and
// refreshes its source classification.
func (g *Graph) AllocateInput(h stage.NodeHandle) stage.InputHandle {
	s := h.Stage()
	in := s.AllocateInput()
	g.reclassify(s)
	return in.Handle()
}

// ReleaseInput frees a dynamic input slot and refreshes the owning node's
// source classification.
func (g *Graph) ReleaseInput(ih stage.InputHandle) {
	in := ih.Get()
	s := in.Owner()
	s.ReleaseInput(in.Index())
	g.reclassify(s)
}

func (g *Graph) reclassify(s *stage.Stage) {
	g.mu.Lock()
	if _, ok := g.stages[s]; ok {
		g.classifyLocked(s)
	}
	g.mu.Unlock()
}

// FlushOutput tells the owning stage to stop producing on the addressed
// output and discard in-flight state, optionally holding the most recent
// unit. Propagation to downstream sinks is the engine's job.
func (g *Graph) FlushOutput(oh stage.OutputHandle, holdLast bool, done func()) {
	o := oh.Get()
	o.Owner().FlushOutput(o.Index(), holdLast, done)
}

// FlushAllOutputs flushes every output of the addressed node. All sibling
// flushes are issued before any completion is awaited; done fires only
// once every issued callback has fired.
func (g *Graph) FlushAllOutputs(h stage.NodeHandle, holdLast bool, done func()) {
	s := h.Stage()
	j := joiner.New()
	for i := 0; i < s.OutputCount(); i++ {
		if s.Output(i) != nil {
			s.FlushOutput(i, holdLast, j.Spawn())
		}
	}
	j.WhenJoined(done)
}

// StageCount returns the number of live stages.
func (g *Graph) StageCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.stages)
}

// Contains reports whether the addressed node is still part of the graph.
func (g *Graph) Contains(h stage.NodeHandle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.stages[h.Stage()]
	return ok
}

// Sources returns handles to every current source stage.
func (g *Graph) Sources() []stage.NodeHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	handles := make([]stage.NodeHandle, 0, len(g.sources))
	for s := range g.sources {
		handles = append(handles, s.Handle())
	}
	return handles
}

// Sinks returns handles to every current sink stage.
func (g *Graph) Sinks() []stage.NodeHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	handles := make([]stage.NodeHandle, 0, len(g.sinks))
	for s := range g.sinks {
		handles = append(handles, s.Handle())
	}
	return handles
}
