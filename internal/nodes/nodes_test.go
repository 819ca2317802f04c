package nodes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/packetgrid/internal/engine"
	"github.com/vk/packetgrid/internal/graph"
	"github.com/vk/packetgrid/internal/packet"
	"github.com/vk/packetgrid/internal/testutil"
)

func newTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(testutil.QuietContext())
	t.Cleanup(func() {
		done := make(chan struct{})
		g.Reset(func() { close(done) })
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("graph did not reset during cleanup")
		}
	})
	return g
}

func TestIntParam(t *testing.T) {
	t.Parallel()

	t.Run("absent uses the default", func(t *testing.T) {
		v, err := intParam(nil, "count", 7)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("number converts", func(t *testing.T) {
		v, err := intParam(map[string]cty.Value{"count": cty.NumberIntVal(42)}, "count", 0)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("non-number is rejected", func(t *testing.T) {
		_, err := intParam(map[string]cty.Value{"count": cty.StringVal("many")}, "count", 0)
		assert.ErrorContains(t, err, `parameter "count" must be a number`)
	})
}

func TestGenerator_ProducesBoundedStream(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	e := engine.New(testutil.QuietContext())

	gen := NewGenerator(12, 64)
	sink := testutil.NewFakeSink("sink", nil)
	src := g.Add(gen)
	dst := g.Add(sink)
	g.ConnectNodes(src, dst)

	e.PrepareInput(dst.Input(0))
	select {
	case <-sink.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("end-of-stream marker never arrived")
	}

	assert.Equal(t, 12, gen.Produced())
	assert.Equal(t, 12, sink.Packets())
	assert.Equal(t, 12*64, sink.Bytes())
}

func TestPassthrough_ForwardsUnchanged(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	e := engine.New(testutil.QuietContext())

	sink := testutil.NewFakeSink("sink", nil)
	src := g.Add(NewGenerator(5, 32))
	mid := g.Add(NewPassthrough())
	dst := g.Add(sink)
	g.ConnectNodes(src, mid)
	g.ConnectNodes(mid, dst)

	e.PrepareInput(dst.Input(0))
	select {
	case <-sink.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("end-of-stream marker never arrived")
	}
	assert.Equal(t, 5, sink.Packets())
	assert.Equal(t, 5*32, sink.Bytes())
}

func TestCollector_CountsAndCompletes(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	e := engine.New(testutil.QuietContext())

	col := NewCollector()
	src := g.Add(NewGenerator(9, 16))
	dst := g.Add(col)
	g.ConnectNodes(src, dst)

	e.PrepareInput(dst.Input(0))
	select {
	case <-col.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("collector never completed")
	}
	assert.Equal(t, int64(9), col.Packets())
	assert.Equal(t, int64(9*16), col.Bytes())
}

func TestMerge_FansInMultipleSources(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	e := engine.New(testutil.QuietContext())

	m := NewMerge()
	mh := g.Add(m, graph.WithName("merge"))
	left := g.Add(NewGenerator(4, 8), graph.WithName("left"))
	right := g.Add(NewGenerator(6, 8), graph.WithName("right"))

	li := g.AllocateInput(mh)
	ri := g.AllocateInput(mh)
	g.Connect(left.Output(0), li)
	g.Connect(right.Output(0), ri)

	e.PrepareInput(li)
	e.PrepareInput(ri)

	require.Eventually(t, func() bool { return m.Ends() == 2 },
		10*time.Second, time.Millisecond)
	assert.Equal(t, int64(10), m.Packets())
}

func TestMerge_SlotLifecycle(t *testing.T) {
	t.Parallel()
	m := NewMerge()

	assert.Zero(t, m.InputCount())
	require.Equal(t, 0, m.AllocateInput())
	require.Equal(t, 1, m.AllocateInput())
	require.Equal(t, 2, m.AllocateInput())
	assert.Equal(t, 3, m.InputCount())

	// Holes reopen and the arena only shrinks past the highest live slot.
	assert.Equal(t, 3, m.ReleaseInput(1))
	assert.Equal(t, 1, m.AllocateInput())
	assert.Equal(t, 2, m.ReleaseInput(2))
	assert.Equal(t, 1, m.ReleaseInput(1))
	assert.Equal(t, 0, m.ReleaseInput(0))
	assert.Zero(t, m.InputCount())
}

func TestMerge_HearsDemandWithdrawnByFlush(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	e := engine.New(testutil.QuietContext())

	m := NewMerge()
	mh := g.Add(m, graph.WithName("merge"))
	src := g.Add(NewGenerator(1<<30, 8), graph.WithName("src"))
	in := g.AllocateInput(mh)
	g.Connect(src.Output(0), in)

	e.PrepareInput(in)
	d, ok := m.LastDemand(0)
	require.True(t, ok)
	assert.Equal(t, packet.DemandOne, d, "preparation seeds demand and the node hears it")

	require.Eventually(t, func() bool { return m.Packets() > 0 },
		10*time.Second, time.Millisecond)

	done := make(chan struct{})
	e.FlushOutput(src.Output(0), false, func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("flush never completed")
	}

	d, ok = m.LastDemand(0)
	require.True(t, ok, "the machinery must report the demand it withdrew")
	assert.Equal(t, packet.DemandNone, d)
}

func TestFactories(t *testing.T) {
	t.Parallel()

	t.Run("generator validates parameters", func(t *testing.T) {
		_, err := newGeneratorNode("src", map[string]cty.Value{"size": cty.True})
		assert.Error(t, err)

		n, err := newGeneratorNode("src", map[string]cty.Value{
			"count": cty.NumberIntVal(2),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, n.InputCount())
		assert.Equal(t, 1, n.OutputCount())
	})

	t.Run("parameterless kinds", func(t *testing.T) {
		p, err := newPassthroughNode("mid", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, p.InputCount())

		c, err := newCollectorNode("dst", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, c.OutputCount())

		mg, err := newMergeNode("m", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, mg.InputCount())
	})
}
