package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("dispatch worker closed")

// DefaultQueueSize is the number of jobs that can wait behind the running one.
const DefaultQueueSize = 16

type job struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan struct{}
	err  error
}

// Worker runs jobs one at a time, in submission order, on a single goroutine
// locked to its OS thread. Drivers with thread affinity therefore see the same
// thread from initialize to uninitialize.
type Worker struct {
	logger  *zap.Logger
	jobs    chan *job
	stopped chan struct{}
	size    int
	mu      sync.RWMutex
	closed  bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithQueueSize sets how many jobs may wait. Non-positive values are ignored.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.size = n
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New starts a worker.
func New(opts ...Option) *Worker {
	w := &Worker{
		logger:  zap.NewNop(),
		size:    DefaultQueueSize,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.jobs = make(chan *job, w.size)

	go w.run()
	return w
}

func (w *Worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.stopped)

	for j := range w.jobs {
		w.exec(j)
	}
}

func (w *Worker) exec(j *job) {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			j.err = fmt.Errorf("dispatch: job panicked: %v", r)
			w.logger.Error("job panicked", zap.Any("panic", r))
		}
	}()
	j.fn(j.ctx)
}

// Do runs fn on the worker and waits for it.
//
// fn receives a context that keeps ctx's values but is never cancelled:
// a call into a driver cannot be interrupted. If ctx ends first Do returns
// ctx.Err() while fn, once queued, still runs to completion.
func (w *Worker) Do(ctx context.Context, fn func(context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &job{
		ctx:  context.WithoutCancel(ctx),
		fn:   fn,
		done: make(chan struct{}),
	}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrClosed
	}
	select {
	case w.jobs <- j:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, waits for queued ones to finish and stops the
// worker. It must not be called from inside a job.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	<-w.stopped
}
