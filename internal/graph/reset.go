package graph

import (
	"github.com/vk/packetgrid/internal/joiner"
	"github.com/vk/packetgrid/internal/stage"
)

// Reset tears the whole graph down in two phases: quiesce everything, then
// destroy everything. The source and sink index sets are cleared
// immediately; every live stage is acquired; once all acquisitions have
// completed, each stage is shut down and released. No node logic runs
// after its stage's release, so nothing is ever torn down while a task
// referencing it is mid-flight on another run loop.
//
// done fires once teardown has completed; it may be nil. A graph-owned
// default loop is stopped as the final step.
func (g *Graph) Reset(done func()) {
	g.mu.Lock()
	g.sources = make(map[*stage.Stage]struct{})
	g.sinks = make(map[*stage.Stage]struct{})
	stages := make([]*stage.Stage, 0, len(g.stages))
	for s := range g.stages {
		stages = append(stages, s)
	}
	g.mu.Unlock()

	g.logger.Debug("Graph reset started.", "stages", len(stages))

	finish := func() {
		g.mu.Lock()
		for _, s := range stages {
			delete(g.stages, s)
		}
		g.mu.Unlock()

		if g.ownsLoop {
			g.defaultLoop.Stop()
		}
		g.logger.Debug("Graph reset complete.")
		if done != nil {
			done()
		}
	}

	if len(stages) == 0 {
		finish()
		return
	}

	j := joiner.New()
	for _, s := range stages {
		s.Acquire(j.Spawn())
	}
	j.WhenJoined(func() {
		for _, s := range stages {
			s.ShutDown()
			s.Release()
		}
		finish()
	})
}
