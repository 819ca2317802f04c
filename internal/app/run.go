package app

import (
	"context"
	"fmt"

	"github.com/vk/packetgrid/internal/builder"
	"github.com/vk/packetgrid/internal/ctxlog"
	"github.com/vk/packetgrid/internal/engine"
	"github.com/vk/packetgrid/internal/graph"
	"github.com/vk/packetgrid/internal/stage"
)

// completer is implemented by sink nodes that can report end-of-stream.
type completer interface {
	Done() <-chan struct{}
}

// counter is implemented by sink nodes that track consumption totals.
type counter interface {
	Packets() int64
	Bytes() int64
}

// Run executes the main application logic: build the declared graph,
// prepare it for flow, wait until every completing sink reports
// end-of-stream (or the timeout elapses), then unprepare and reset.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	g := graph.New(ctx)
	handles, err := builder.Build(ctx, a.model, a.registry, g)
	if err != nil {
		return fmt.Errorf("failed to build pipeline graph: %w", err)
	}
	a.logger.Debug("Pipeline graph built.", "node_count", len(handles),
		"sources", len(g.Sources()), "sinks", len(g.Sinks()))

	if g.StageCount() == 0 {
		a.logger.Warn("No nodes found in pipeline, nothing to run.")
		resetDone := make(chan struct{})
		g.Reset(func() { close(resetDone) })
		<-resetDone
		return nil
	}

	eng := engine.New(ctx)
	sinks := g.Sinks()
	for _, sink := range sinks {
		forEachConnectedInput(sink, eng.PrepareInput)
	}
	a.logger.Info("Pipeline flow started.", "sinks", len(sinks))

	flowCtx := ctx
	if appConfig.Timeout > 0 {
		var cancel context.CancelFunc
		flowCtx, cancel = context.WithTimeout(ctx, appConfig.Timeout)
		defer cancel()
	}

	timedOut := false
	for _, sink := range sinks {
		c, ok := sink.Stage().Node().(completer)
		if !ok {
			continue
		}
		select {
		case <-c.Done():
		case <-flowCtx.Done():
			a.logger.Warn("Flow phase ended early.", "reason", flowCtx.Err())
			timedOut = true
		}
		if timedOut {
			break
		}
	}

	for _, sink := range sinks {
		forEachConnectedInput(sink, eng.UnprepareInput)
	}
	a.logger.Debug("Pipeline unprepared.")

	resetDone := make(chan struct{})
	g.Reset(func() { close(resetDone) })
	<-resetDone
	a.logger.Info("Pipeline torn down.")

	for name, h := range handles {
		if c, ok := h.Stage().Node().(counter); ok {
			a.logger.Info("Sink totals.", "node", name,
				"packets", c.Packets(), "bytes", c.Bytes())
		}
	}

	if timedOut {
		return fmt.Errorf("pipeline did not complete: %w", flowCtx.Err())
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

// forEachConnectedInput applies fn to every connected input slot of the
// addressed node.
func forEachConnectedInput(h stage.NodeHandle, fn func(stage.InputHandle)) {
	s := h.Stage()
	for i := 0; i < s.InputCount(); i++ {
		if in := s.Input(i); in != nil && in.Connected() {
			fn(in.Handle())
		}
	}
}
