// Package phase runs a test's phase sequence. The executor produces phase
// outcomes lazily: a phase starts only when the consumer asks for its
// outcome, so the controlling loop can halt the sequence early and be
// certain no further phase runs.
package phase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MFX-eng/openhtf/types"
)

// ErrStopped is the outcome error for phases cut off by an engine stop.
var ErrStopped = errors.New("phase engine stopped")

// Engine executes phases on behalf of one test run.
type Engine interface {
	// ExecutePhases returns a lazy, finite, non-restartable sequence of
	// phase outcomes. Each phase starts only when the consumer pulls its
	// outcome; abandoning the iteration halts the sequence without
	// starting another phase. The sequence also ends when the engine is
	// stopped or ctx is cancelled.
	ExecutePhases(ctx context.Context, phases []types.PhaseDescriptor) iter.Seq[types.PhaseOutcome]

	// ExecuteOne runs a single phase. A non-zero override replaces the
	// phase's own timeout; it is a hard ceiling enforced by deadline.
	ExecuteOne(ctx context.Context, ph types.PhaseDescriptor, override time.Duration) types.PhaseOutcome

	// Stop requests early termination of any in-flight phase and ends the
	// outcome sequence. Best-effort and idempotent.
	Stop()
}

var _ Engine = (*Executor)(nil)

// Executor is the default Engine. It enforces per-phase timeouts, recovers
// phase panics into error outcomes, and traces each phase.
type Executor struct {
	test           types.PhaseContext
	logger         log.Logger
	defaultTimeout time.Duration
	tracer         trace.Tracer

	stopOnce sync.Once
	stop     chan struct{}
	cancel   chan context.CancelFunc // holds the current phase's cancel, capacity 1
}

// NewExecutor creates an executor for one run. defaultTimeout bounds phases
// that declare no timeout of their own; zero means unbounded.
func NewExecutor(test types.PhaseContext, logger log.Logger, defaultTimeout time.Duration) *Executor {
	return &Executor{
		test:           test,
		logger:         logger,
		defaultTimeout: defaultTimeout,
		tracer:         otel.Tracer("phase executor"),
		stop:           make(chan struct{}),
		cancel:         make(chan context.CancelFunc, 1),
	}
}

// ExecutePhases implements Engine. The sequence runs on the consumer's
// goroutine, so the iteration itself is the demand signal: phase N+1 cannot
// begin until the consumer asked for outcome N+1.
func (e *Executor) ExecutePhases(ctx context.Context, phases []types.PhaseDescriptor) iter.Seq[types.PhaseOutcome] {
	return func(yield func(types.PhaseOutcome) bool) {
		for _, ph := range phases {
			if e.stopped() || ctx.Err() != nil {
				return
			}
			outcome := e.ExecuteOne(ctx, ph, 0)
			// A stop or cancellation that interrupted the phase ends the
			// sequence without yielding the interrupted outcome.
			if e.stopped() || ctx.Err() != nil {
				return
			}
			if !yield(outcome) {
				return
			}
		}
	}
}

// ExecuteOne implements Engine. The phase function runs on its own
// goroutine; if it outlives its deadline or an engine stop, the outcome is
// recorded immediately and the goroutine is left to observe its context.
func (e *Executor) ExecuteOne(ctx context.Context, ph types.PhaseDescriptor, override time.Duration) types.PhaseOutcome {
	if e.stopped() {
		return types.PhaseOutcome{Phase: ph.Name, Result: types.PhaseError, Err: ErrStopped}
	}

	timeout := override
	if timeout == 0 {
		timeout = ph.Options.Timeout
	}
	if timeout == 0 {
		timeout = e.defaultTimeout
	}

	phaseCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		phaseCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		phaseCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	e.setCancel(cancel)
	defer e.clearCancel()

	phaseCtx, span := e.tracer.Start(phaseCtx, fmt.Sprintf("phase %s", ph.Name))
	defer span.End()

	e.logger.Info("Executing phase", "phase", ph.Name, "timeout", timeout)
	start := time.Now()

	done := make(chan types.PhaseOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- types.PhaseOutcome{
					Phase:  ph.Name,
					Result: types.PhaseError,
					Err:    fmt.Errorf("phase %s panicked: %v", ph.Name, r),
				}
			}
		}()
		result := ph.Run(phaseCtx, e.test)
		done <- types.PhaseOutcome{Phase: ph.Name, Result: result}
	}()

	var outcome types.PhaseOutcome
	select {
	case outcome = <-done:
	case <-phaseCtx.Done():
		if errors.Is(phaseCtx.Err(), context.DeadlineExceeded) {
			outcome = types.PhaseOutcome{
				Phase:  ph.Name,
				Result: types.PhaseTimeout,
				Err:    fmt.Errorf("phase %s exceeded %v", ph.Name, timeout),
			}
		} else {
			outcome = types.PhaseOutcome{
				Phase:  ph.Name,
				Result: types.PhaseError,
				Err:    fmt.Errorf("phase %s interrupted: %w", ph.Name, context.Cause(phaseCtx)),
			}
		}
	}
	outcome.Duration = time.Since(start)

	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		e.logger.Warn("Phase did not pass", "phase", ph.Name, "result", outcome.Result, "error", outcome.Err, "duration", outcome.Duration)
	} else {
		e.logger.Debug("Phase finished", "phase", ph.Name, "result", outcome.Result, "duration", outcome.Duration)
	}
	return outcome
}

// Stop implements Engine.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
		e.clearCancel()
		e.logger.Debug("Phase executor stopped")
	})
}

func (e *Executor) stopped() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

func (e *Executor) setCancel(cancel context.CancelFunc) {
	select {
	case e.cancel <- cancel:
	default:
	}
}

func (e *Executor) clearCancel() {
	select {
	case cancel := <-e.cancel:
		cancel()
	default:
	}
}
