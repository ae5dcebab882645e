// Package capture requests screenshots from the single goroutine that owns
// the browser page, no matter which goroutine asks.
//
// A Loop is the page owner's executor. Call is the one submit-and-await
// primitive; every capture path (failure, success, manual) goes through it.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout means the loop did not finish the task in time.
	ErrTimeout = errors.New("capture timed out")
	// ErrLoopClosed means the loop has shut down or was never usable.
	ErrLoopClosed = errors.New("capture loop closed")
	// ErrUnavailable means the page is already torn down.
	ErrUnavailable = errors.New("capture target unavailable")
)

const taskBacklog = 16

// Loop runs submitted tasks one at a time on the goroutine that calls Run.
// It belongs to a single run and is closed when that run ends.
type Loop struct {
	tasks     chan func(context.Context)
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoop returns an idle loop. Tasks queue until Run is called.
func NewLoop() *Loop {
	return &Loop{
		tasks: make(chan func(context.Context), taskBacklog),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled or Close is called, then closes
// the loop.
func (l *Loop) Run(ctx context.Context) {
	defer l.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case task := <-l.tasks:
			task(ctx)
		}
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start(ctx context.Context) {
	go l.Run(ctx)
}

// Submit queues task. It never blocks past Close.
func (l *Loop) Submit(task func(context.Context)) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Close stops the loop. Queued tasks are dropped.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Closed reports whether the loop has stopped.
func (l *Loop) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

type outcome[T any] struct {
	val T
	err error
}

// Call runs fn on the loop and waits at most timeout for its result. fn
// receives a context that expires with the wait, so an abandoned task can
// stop early. A nil or closed loop yields ErrLoopClosed.
func Call[T any](l *Loop, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if l == nil {
		return zero, ErrLoopClosed
	}

	deadline := time.Now().Add(timeout)
	results := make(chan outcome[T], 1)
	err := l.Submit(func(loopCtx context.Context) {
		ctx, cancel := context.WithDeadline(loopCtx, deadline)
		defer cancel()
		v, err := fn(ctx)
		results <- outcome[T]{val: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-results:
		return res.val, res.err
	case <-timer.C:
		return zero, ErrTimeout
	case <-l.done:
		return zero, ErrLoopClosed
	}
}
