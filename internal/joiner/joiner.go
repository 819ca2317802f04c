// Package joiner implements completion-callback joining: fan out any number
// of asynchronous operations, then run a single continuation after every one
// of them has reported completion. No goroutine ever blocks waiting; the
// continuation runs on whichever goroutine reports last.
package joiner

import (
	"sync"
	"sync/atomic"
)

// Joiner tracks a set of spawned completion callbacks. The counter starts
// at one: that initial token is held by the joiner itself and surrendered
// by WhenJoined, so the continuation can never fire before every callback
// has been handed out.
type Joiner struct {
	remaining atomic.Int32
	then      func()
}

// New returns a joiner with no spawned callbacks.
func New() *Joiner {
	j := &Joiner{}
	j.remaining.Add(1)
	return j
}

// Spawn registers one pending operation and returns its completion callback.
// The returned function is idempotent. All Spawn calls must happen before
// WhenJoined.
func (j *Joiner) Spawn() func() {
	j.remaining.Add(1)
	var once sync.Once
	return func() {
		once.Do(j.finish)
	}
}

// WhenJoined records the continuation and surrenders the joiner's own token.
// If every spawned callback already fired, the continuation runs
// immediately on the calling goroutine. A nil continuation is allowed.
func (j *Joiner) WhenJoined(then func()) {
	j.then = then
	j.finish()
}

func (j *Joiner) finish() {
	if j.remaining.Add(-1) == 0 {
		if j.then != nil {
			j.then()
		}
	}
}
