// Package runloop provides a serialized task executor: a single goroutine
// draining a task channel. It is the bridge between the worker's polling
// threads and the wake-up service's event loop — state owned by the loop
// (the pub/sub client, the presence map) is only ever touched by functions
// scheduled onto it, never called across goroutines directly.
package runloop

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("runloop: closed")

// Loop runs submitted functions one at a time on a dedicated goroutine.
type Loop struct {
	tasks   chan task
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

type task struct {
	fn   func()
	done chan struct{} // nil for fire-and-forget posts
}

// New starts a loop with the given task buffer.
func New(buffer int) *Loop {
	l := &Loop{
		tasks:   make(chan task, buffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case t := <-l.tasks:
			l.exec(t)
		case <-l.closing:
			// Drain what was already queued, then stop.
			for {
				select {
				case t := <-l.tasks:
					l.exec(t)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) exec(t task) {
	t.fn()
	if t.done != nil {
		close(t.done)
	}
}

// Submit schedules fn on the loop and waits for it to finish, or for ctx.
// Returns ErrClosed once the loop has shut down.
func (l *Loop) Submit(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case l.tasks <- t:
	case <-l.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-t.done:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post schedules fn without waiting. Returns false when the loop is full
// or shutting down — posts are best-effort by design; callers that need a
// guarantee use Submit.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.closing:
		return false
	default:
	}
	select {
	case l.tasks <- task{fn: fn}:
		return true
	default:
		return false
	}
}

// Close stops the loop after draining already-queued tasks and waits for
// the loop goroutine to exit. Safe to call more than once.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.closing) })
	<-l.done
}
