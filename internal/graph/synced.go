package graph

import (
	"sync/atomic"

	"github.com/vk/packetgrid/internal/stage"
)

// syncedTask runs a task exactly once after every participant stage has
// been acquired: an atomic countdown initialized to the participant count,
// decremented by each stage's acquire callback, with the body firing on
// the transition to zero. Constructed once per PostTask call and dropped
// after the continuation runs.
type syncedTask struct {
	remaining atomic.Int32
	fn        func()
	stages    []*stage.Stage
}

// PostTask runs fn exactly once, strictly after every named node's stage
// reports itself acquired, and releases every stage afterward. The result
// is independent of the order the acquire callbacks fire in and of how
// many distinct run loops the stages are bound to, letting a caller mutate
// several connected nodes as one atomic step without pausing the whole
// graph.
func (g *Graph) PostTask(fn func(), handles ...stage.NodeHandle) {
	if len(handles) == 0 {
		panic("graph: synchronized task needs at least one node")
	}

	st := &syncedTask{fn: fn}
	seen := make(map[*stage.Stage]bool, len(handles))
	for _, h := range handles {
		s := h.Stage()
		if !seen[s] {
			seen[s] = true
			st.stages = append(st.stages, s)
		}
	}
	st.remaining.Store(int32(len(st.stages)))

	g.logger.Debug("Synchronized task posted.", "participants", len(st.stages))
	for _, s := range st.stages {
		s.Acquire(st.countdown)
	}
}

// countdown is each participant's acquire callback. The last one in runs
// the body while every participant is still paused, then releases them
// all.
func (st *syncedTask) countdown() {
	if st.remaining.Add(-1) != 0 {
		return
	}
	st.fn()
	for _, s := range st.stages {
		s.Release()
	}
}
