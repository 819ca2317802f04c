package graph

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/packetgrid/internal/stage"
	"github.com/vk/packetgrid/internal/testutil"
)

func TestPostTask_RunsAfterAllParticipantsPause(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)

	// Spread the participants across their own run loops so the acquire
	// callbacks genuinely race.
	handles := make([]stage.NodeHandle, 0, 8)
	for i := 0; i < 8; i++ {
		loop := stageLoopForTest(t)
		handles = append(handles, g.Add(testutil.NewFakeSink("sink", nil), WithLoop(loop)))
	}

	var during atomic.Int32
	ran := make(chan struct{})
	g.PostTask(func() {
		// Every participant must be suspended while the body runs; a task
		// posted now must not execute until the body returns.
		for _, h := range handles {
			h.Stage().PostTask(func() { during.Add(1) })
		}
		assert.Zero(t, during.Load())
		close(ran)
	}, handles...)

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("synchronized task never ran")
	}

	// After release all the probe tasks drain.
	require.Eventually(t, func() bool { return during.Load() == 8 },
		5*time.Second, time.Millisecond)
}

func TestPostTask_RunsExactlyOnce(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)

	a := g.Add(testutil.NewFakeSink("a", nil), WithLoop(stageLoopForTest(t)))
	b := g.Add(testutil.NewFakeSink("b", nil), WithLoop(stageLoopForTest(t)))

	var runs atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		done := make(chan struct{})
		g.PostTask(func() {
			runs.Add(1)
			close(done)
		}, a, b)
		go func() {
			defer wg.Done()
			<-done
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), runs.Load())
}

func TestPostTask_DuplicateParticipants(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)

	h := g.Add(testutil.NewFakeSink("sink", nil))

	// The same stage named twice must count as one participant, not
	// deadlock waiting for a second acquire behind its own suspension.
	ran := make(chan struct{})
	g.PostTask(func() { close(ran) }, h, h, h)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("synchronized task deadlocked on duplicate participants")
	}
}

func TestPostTask_NoParticipantsIsFatal(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	assert.Panics(t, func() { g.PostTask(func() {}) })
}
