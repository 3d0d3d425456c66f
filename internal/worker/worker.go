// Package worker provides the dedicated execution context that owns all
// camera device I/O.
//
// A Worker runs posted tasks one at a time, in post order, on a single
// goroutine that is locked to its OS thread. Camera libraries such as
// OpenCV and V4L2 keep per-thread state, so every open, configure and
// release call lands on the same thread for the life of the worker.
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// ErrStopped is returned by Post after Stop has been called.
var ErrStopped = errors.New("worker: stopped")

// Worker is a single-goroutine FIFO task runner.
type Worker struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{} // capacity 1; nudges the loop after Post/Stop
	done chan struct{}
}

// New starts a worker goroutine. The logger may be nil.
func New(name string, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		name:   name,
		logger: logger.Named("worker").With(zap.String("worker", name)),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Name returns the name the worker was created with.
func (w *Worker) Name() string {
	return w.name
}

// Post enqueues task for execution on the worker goroutine.
// It never blocks on the task itself; tasks run strictly in post order.
func (w *Worker) Post(task func()) error {
	if task == nil {
		return nil
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	w.queue = append(w.queue, task)
	w.mu.Unlock()

	w.signal()
	return nil
}

// Pending returns the number of queued tasks not yet started.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Stop refuses new tasks, runs every task already queued, and waits for
// the worker goroutine to exit. Calling Stop more than once is safe.
// Stop must not be called from a task running on this worker.
func (w *Worker) Stop() {
	_ = w.StopContext(context.Background())
}

// StopContext is Stop with a bounded wait. When ctx ends before the queue
// drains it returns ctx.Err(); the worker keeps running the queued tasks
// and exits once they are done.
func (w *Worker) StopContext(ctx context.Context) error {
	w.mu.Lock()
	already := w.stopped
	w.stopped = true
	w.mu.Unlock()

	if !already {
		w.signal()
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("stop interrupted", zap.Int("pending", w.Pending()), zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	w.logger.Debug("worker started")

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			if w.stopped {
				w.mu.Unlock()
				w.logger.Debug("worker stopped")
				return
			}
			w.mu.Unlock()
			<-w.wake
			continue
		}
		task := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		task()
	}
}
