package openhtf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
)

// Worker runs a single procedure on its own goroutine. It can be started
// exactly once, asked to stop asynchronously, and waited on. Stop requests
// are cooperative: the procedure observes them through its context at its
// suspension points.
type Worker struct {
	name   string
	logger log.Logger
	proc   func(ctx context.Context) error

	started atomic.Bool
	cancel  context.CancelCauseFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// NewWorker creates a worker for the given procedure.
func NewWorker(name string, logger log.Logger, proc func(ctx context.Context) error) *Worker {
	return &Worker{
		name:   name,
		logger: logger,
		proc:   proc,
		done:   make(chan struct{}),
	}
}

// Start launches the procedure. Starting twice is a usage error.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: worker %s", ErrAlreadyStarted, w.name)
	}

	procCtx, cancel := context.WithCancelCause(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Worker panicked", "worker", w.name, "panic", r)
				w.setErr(fmt.Errorf("worker %s panicked: %v", w.name, r))
			}
		}()
		w.setErr(w.proc(procCtx))
	}()
	return nil
}

// RequestStop asks the procedure to terminate. Best-effort: the signal lands
// at the procedure's next cooperation point, or not at all if it already
// exited. Safe to call at any time, including before Start.
func (w *Worker) RequestStop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel(ErrTestStopped)
	}
}

// Done is closed when the procedure has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the procedure returns, yielding its error, or until ctx
// is cancelled, yielding the cancellation cause. An interrupted wait does
// not stop the worker.
func (w *Worker) Wait(ctx context.Context) error {
	if !w.started.Load() {
		return fmt.Errorf("%w: worker %s", ErrNotStarted, w.name)
	}
	select {
	case <-w.done:
		return w.Err()
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Err returns the procedure's error once Done is closed.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}
