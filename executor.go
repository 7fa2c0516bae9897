// Package openhtf is the execution core of a hardware test station. It owns
// the worker goroutine that drives a single test from start trigger to
// finalized record, guarantees exactly-once release of everything acquired
// along the way, and stays externally stoppable at every point of the run.
package openhtf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/MFX-eng/openhtf/phase"
	"github.com/MFX-eng/openhtf/plugs"
	"github.com/MFX-eng/openhtf/state"
	"github.com/MFX-eng/openhtf/types"
)

// StartTrigger blocks until a unit-under-test identifier is available. It is
// called exactly once per run, outside any executor lock, and must honour
// context cancellation. A nil trigger starts the run immediately.
type StartTrigger func(ctx context.Context) (string, error)

// EngineFactory constructs the phase engine for a run.
type EngineFactory func(test types.PhaseContext, logger log.Logger) phase.Engine

// TestExecutor encompasses the execution of a single test. An external
// controller drives it through Start, Stop, Wait, Finalize and GetState;
// the lifecycle itself runs on the executor's worker goroutine.
type TestExecutor struct {
	cfg       *Config
	test      *types.TestDescriptor
	trigger   StartTrigger
	teardown  *types.PhaseDescriptor
	plugMgr   types.PlugManager
	newEngine EngineFactory
	logger    log.Logger

	worker *Worker

	// mu guards stack and stopped: the only region shared between the
	// worker's check-and-install step and a concurrent Stop.
	mu      sync.Mutex
	stack   *CleanupStack
	stopped bool

	st atomic.Pointer[state.TestState]
}

// Option customises a TestExecutor.
type Option func(*TestExecutor)

// WithStartTrigger installs the external start trigger.
func WithStartTrigger(trigger StartTrigger) Option {
	return func(e *TestExecutor) { e.trigger = trigger }
}

// WithTeardown installs a teardown phase. Its timeout is forced to the
// configured teardown bound regardless of what the descriptor declares, so
// a hanging teardown can never wedge the run.
func WithTeardown(ph types.PhaseDescriptor) Option {
	return func(e *TestExecutor) { e.teardown = &ph }
}

// WithPlugs installs the plug manager for the run. Defaults to an empty
// plugs.Manager.
func WithPlugs(pm types.PlugManager) Option {
	return func(e *TestExecutor) { e.plugMgr = pm }
}

// WithEngineFactory replaces the default phase engine constructor.
func WithEngineFactory(factory EngineFactory) Option {
	return func(e *TestExecutor) { e.newEngine = factory }
}

// NewTestExecutor creates an executor for one run of test.
func NewTestExecutor(cfg *Config, test *types.TestDescriptor, opts ...Option) *TestExecutor {
	e := &TestExecutor{
		cfg:    cfg,
		test:   test,
		logger: cfg.Log.New("test", test.Name),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.plugMgr == nil {
		e.plugMgr = plugs.NewManager(e.logger)
	}
	if e.newEngine == nil {
		e.newEngine = func(test types.PhaseContext, logger log.Logger) phase.Engine {
			return phase.NewExecutor(test, logger, cfg.DefaultPhaseTimeout)
		}
	}
	if e.teardown != nil {
		// Force the teardown bound at construction time.
		bounded := e.teardown.WithTimeout(cfg.TeardownTimeout)
		e.teardown = &bounded
	}
	e.worker = NewWorker("TestExecutorWorker", e.logger, e.run)
	return e
}

// Start launches the lifecycle procedure on the worker goroutine. Calling
// it twice is a usage error.
func (e *TestExecutor) Start(ctx context.Context) error {
	e.logger.Info("Starting test executor")
	return e.worker.Start(ctx)
}

// Stop requests cancellation of the run and unwinds any resources acquired
// so far by closing the cleanup stack. The close happens under the same
// lock that guards installation, so a setup step in flight either installs
// before the close or observes the stop. Idempotent; a stop before the
// worker installs its stack makes the worker fail fast with ErrTestStopped.
func (e *TestExecutor) Stop() {
	e.logger.Info("Stopping test executor")
	e.mu.Lock()
	e.stopped = true
	if e.stack != nil {
		e.stack.Close()
	}
	e.mu.Unlock()

	e.worker.RequestStop()
}

// Wait blocks until the worker terminates and returns its error. Waiting on
// a run that was never started returns ErrNotStarted. If ctx is cancelled
// while waiting (e.g. by a process-level interrupt), the test state is
// force-finalized as ABORTED before the cancellation cause is returned: a
// termination signal never leaves the record unfinished.
func (e *TestExecutor) Wait(ctx context.Context) error {
	err := e.worker.Wait(ctx)
	if ctx.Err() != nil && !errors.Is(err, ErrNotStarted) {
		if st := e.st.Load(); st != nil && !st.Finalized() {
			st.Logger().Info("Interrupt caught, finishing test with outcome ABORTED")
			_ = st.Finalize(types.OutcomeAborted)
		}
	}
	return err
}

// Finalize returns the completed TestState. If no state was ever created
// the run was stopped before it began and ErrTestStopped is returned. A
// state that never reached a terminal outcome through its normal path is
// force-finalized as ABORTED here. Finalization happens at most once; later
// calls return the already-finalized state.
func (e *TestExecutor) Finalize() (*state.TestState, error) {
	st := e.st.Load()
	if st == nil {
		return nil, ErrTestStopped
	}
	if !st.Finalized() {
		st.Logger().Info("Finishing test with outcome ABORTED")
		_ = st.Finalize(types.OutcomeAborted)
	}
	return st, nil
}

// GetState returns the current TestState without mutation. It is nil before
// the start trigger has fired.
func (e *TestExecutor) GetState() *state.TestState {
	return e.st.Load()
}

// run is the lifecycle procedure. It handles one whole test from start to
// finish on the worker goroutine.
func (e *TestExecutor) run(ctx context.Context) error {
	stack := NewCleanupStack(e.logger)
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrTestStopped
	}
	e.stack = stack
	e.mu.Unlock()

	// Whatever happens below, everything acquired during the run is
	// released exactly once.
	defer stack.Close()

	// Wait for the start trigger without holding e.mu, or a concurrent
	// Stop would deadlock behind an indefinitely blocking trigger.
	unitID, err := e.waitForTestStart(ctx)
	if err != nil {
		return err
	}

	st := state.New(e.test, e.logger, e.plugMgr, state.Options{
		Station:    e.cfg.StationName,
		StopOnFail: e.cfg.StopOnFirstFail,
	})
	e.st.Store(st)
	st.TestStarted(unitID)

	// Plug creation can also take a while; still no lock held.
	if err := e.plugMgr.InitializePlugs(); err != nil {
		return fmt.Errorf("plug initialization: %w", err)
	}

	eng, err := e.installCleanup(st)
	if err != nil {
		return err
	}

	execErr := e.executePhases(ctx, st, eng)
	e.executeTeardown(ctx, st, eng)
	return execErr
}

// waitForTestStart blocks on the start trigger, if one is configured.
func (e *TestExecutor) waitForTestStart(ctx context.Context) (string, error) {
	if e.trigger == nil {
		return "", nil
	}
	e.logger.Info("Waiting for test start trigger")
	unitID, err := e.trigger(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", context.Cause(ctx)
		}
		return "", fmt.Errorf("start trigger: %w", err)
	}
	return unitID, nil
}

// installCleanup is the guarded check-and-install step: under the lock it
// verifies no Stop cleared the stack while the trigger and plug setup were
// in flight, then registers plug teardown and the engine's stop action.
// LIFO ordering releases the engine before the plugs it drives.
func (e *TestExecutor) installCleanup(st *state.TestState) (phase.Engine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stack.Closed() {
		// Stop won the race before installation. No later step will tear
		// down the plugs, so do it best-effort right here.
		e.logger.Warn("Stop raced test setup, tearing down plugs")
		e.plugMgr.TearDownPlugs()
		return nil, ErrTestStopped
	}

	// A rejected push is the same lost race: the stack was spent before
	// this step could register its release, so release it here instead.
	if err := e.stack.Push("plug teardown", func() error {
		e.plugMgr.TearDownPlugs()
		return nil
	}); err != nil {
		e.plugMgr.TearDownPlugs()
		return nil, ErrTestStopped
	}

	eng := e.newEngine(st, st.Logger())
	if err := e.stack.Push("phase engine stop", func() error {
		eng.Stop()
		return nil
	}); err != nil {
		eng.Stop()
		e.plugMgr.TearDownPlugs()
		return nil, ErrTestStopped
	}
	return eng, nil
}

// executePhases pulls the engine's lazy outcome sequence, advancing the
// test state until the sequence ends or a terminal outcome halts it.
func (e *TestExecutor) executePhases(ctx context.Context, st *state.TestState, eng phase.Engine) error {
	st.SetStatusRunning()

	for po := range eng.ExecutePhases(ctx, e.test.Phases) {
		if st.SetStatusFromPhaseOutcome(po) {
			// Terminal outcome. Abandoning the iteration guarantees the
			// engine never starts another phase; the engine itself stays
			// usable for teardown.
			return nil
		}
	}

	if e.isStopped() {
		// The sequence was cut short by a stop, not completed.
		st.Logger().Info("Run stopped, finishing test with outcome ABORTED")
		_ = st.Finalize(types.OutcomeAborted)
		return ErrTestStopped
	}
	if ctx.Err() != nil {
		st.Logger().Info("Run interrupted, finishing test with outcome ABORTED")
		_ = st.Finalize(types.OutcomeAborted)
		return context.Cause(ctx)
	}
	// Sequence completed without an early halt; finalize with the
	// accumulated outcome.
	if err := st.Finalize(types.OutcomeUnset); err != nil && !errors.Is(err, state.ErrAlreadyFinalized) {
		return err
	}
	return nil
}

func (e *TestExecutor) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// executeTeardown runs the configured teardown phase once, detached from
// the run's cancellation, under the hard teardown bound. It runs regardless
// of the phase outcome; its failures are recorded but never override
// the primary result. When the engine was already stopped by an external
// Stop the attempt returns immediately.
func (e *TestExecutor) executeTeardown(ctx context.Context, st *state.TestState, eng phase.Engine) {
	if e.teardown == nil {
		return
	}
	outcome := eng.ExecuteOne(context.WithoutCancel(ctx), *e.teardown, e.cfg.TeardownTimeout)
	if errors.Is(outcome.Err, phase.ErrStopped) {
		st.Logger().Debug("Skipping teardown, phase engine already stopped")
		return
	}
	if outcome.Result != types.PhaseContinue {
		st.Logger().Error("Teardown phase did not pass", "phase", outcome.Phase, "result", outcome.Result, "error", outcome.Err)
	}
	st.RecordTeardown(outcome)
}
