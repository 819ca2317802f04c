// Package runloop provides the single-threaded cooperative execution
// context that stages bind to. Tasks posted to a loop run in FIFO order on
// one goroutine; distinct loops run truly concurrently.
package runloop

import "sync"

// Loop is a single-threaded task executor. The zero value is not usable;
// create loops with New.
type Loop struct {
	// mu protects the task queue during concurrent push/pop. It is never
	// held while a task body executes.
	mu      sync.Mutex
	queue   []func()
	stopped bool

	// wake nudges the drain goroutine when work arrives. Capacity one so a
	// pending nudge coalesces with the next.
	wake chan struct{}
	done chan struct{}
}

// New creates a loop and starts its drain goroutine.
func New() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post enqueues a task for execution. Safe to call from any goroutine,
// including from a task running on this loop. Tasks posted after Stop are
// silently discarded.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop terminates the loop after the tasks already queued have run. It
// returns without waiting; use Join to wait for termination.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Join blocks until the loop's goroutine has exited.
func (l *Loop) Join() {
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			stopped := l.stopped
			l.mu.Unlock()
			if stopped {
				return
			}
			<-l.wake
			continue
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}
