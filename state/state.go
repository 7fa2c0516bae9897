// Package state holds the single mutable record of an in-progress test run.
// A TestState is owned by the executor's worker goroutine until it is
// finalized and handed back; external callers read it via Record snapshots.
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/MFX-eng/openhtf/types"
)

// ErrAlreadyFinalized is returned when Finalize is called on a state that
// already reached its terminal outcome.
var ErrAlreadyFinalized = errors.New("test state already finalized")

// TestState tracks one run from creation to finalization. All mutators take
// the internal lock; reads go through snapshot methods so the executor's
// worker goroutine and external controller goroutines never race.
type TestState struct {
	mu sync.Mutex

	runID   string
	station string
	test    *types.TestDescriptor
	logger  log.Logger
	plugs   types.PlugManager

	unitID    string
	status    types.TestStatus
	outcome   types.Outcome
	finalized bool
	// stopOnFail halts the phase sequence on the first failing phase.
	stopOnFail bool

	startTime time.Time
	endTime   time.Time
	phases    []types.PhaseRecord
}

var _ types.PhaseContext = (*TestState)(nil)

// Options tunes a new TestState.
type Options struct {
	Station string
	// StopOnFail halts the run on the first PhaseFail outcome.
	StopOnFail bool
}

// New creates the state for one run with a fresh run ID and a run-scoped
// logger derived from base.
func New(test *types.TestDescriptor, base log.Logger, plugs types.PlugManager, opts Options) *TestState {
	runID := uuid.New().String()
	return &TestState{
		runID:      runID,
		station:    opts.Station,
		test:       test,
		logger:     base.New("run_id", runID, "test", test.Name),
		plugs:      plugs,
		status:     types.StatusCreated,
		stopOnFail: opts.StopOnFail,
	}
}

// Logger returns the run-scoped logger.
func (s *TestState) Logger() log.Logger { return s.logger }

// Plugs returns the plug manager for this run.
func (s *TestState) Plugs() types.PlugManager { return s.plugs }

// RunID returns the unique identifier of this run.
func (s *TestState) RunID() string { return s.runID }

// UnitID returns the unit-under-test identifier, if any.
func (s *TestState) UnitID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unitID
}

// TestStarted records the start-trigger result and stamps the start time.
// Plug setup happens next, so the state moves to initializing.
func (s *TestState) TestStarted(unitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unitID = unitID
	s.status = types.StatusInitializing
	s.startTime = time.Now()
}

// SetStatusRunning marks the beginning of phase execution.
func (s *TestState) SetStatusRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = types.StatusRunning
	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}
}

// SetStatusFromPhaseOutcome records one phase outcome. It returns true when
// the outcome is terminal for the run, in which case the state has already
// been finalized and the phase sequence must halt.
func (s *TestState) SetStatusFromPhaseOutcome(po types.PhaseOutcome) bool {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return true
	}
	s.phases = append(s.phases, phaseRecord(po))
	s.mu.Unlock()

	switch po.Result {
	case types.PhaseContinue:
		return false
	case types.PhaseFail:
		if !s.stopOnFail {
			return false
		}
		s.logger.Warn("Phase failed, halting test", "phase", po.Phase)
		_ = s.Finalize(types.OutcomeFail)
		return true
	default: // error, timeout
		s.logger.Error("Phase errored, halting test", "phase", po.Phase, "result", po.Result, "error", po.Err)
		_ = s.Finalize(types.OutcomeError)
		return true
	}
}

// RecordTeardown appends the teardown phase's record without affecting the
// outcome. Teardown failures never overwrite the primary result.
func (s *TestState) RecordTeardown(po types.PhaseOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, phaseRecord(po))
}

// Finalize stamps the terminal outcome exactly once. OutcomeUnset derives
// the outcome from the accumulated phase records (an empty sequence passes).
// A second call returns ErrAlreadyFinalized and changes nothing.
func (s *TestState) Finalize(outcome types.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrAlreadyFinalized
	}
	if outcome == types.OutcomeUnset {
		outcome = s.deriveOutcomeLocked()
	}
	s.outcome = outcome
	s.finalized = true
	s.status = types.StatusCompleted
	s.endTime = time.Now()
	s.logger.Info("Finishing test", "outcome", outcome)
	return nil
}

func (s *TestState) deriveOutcomeLocked() types.Outcome {
	outcome := types.OutcomePass
	for _, p := range s.phases {
		switch p.Result {
		case types.PhaseFail:
			if outcome == types.OutcomePass {
				outcome = types.OutcomeFail
			}
		case types.PhaseError, types.PhaseTimeout:
			return types.OutcomeError
		}
	}
	return outcome
}

// Finalized reports whether the state reached its terminal outcome.
func (s *TestState) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// Outcome returns the terminal outcome, or OutcomeUnset before finalization.
func (s *TestState) Outcome() types.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Record returns an immutable snapshot of the run.
func (s *TestState) Record() *types.TestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	phases := make([]types.PhaseRecord, len(s.phases))
	copy(phases, s.phases)

	rec := &types.TestRecord{
		RunID:     s.runID,
		Test:      s.test.Name,
		Station:   s.station,
		UnitID:    s.unitID,
		Status:    s.status,
		Outcome:   s.outcome,
		Finalized: s.finalized,
		StartTime: s.startTime,
		EndTime:   s.endTime,
		Phases:    phases,
	}
	if !s.startTime.IsZero() && !s.endTime.IsZero() {
		rec.Duration = s.endTime.Sub(s.startTime)
	}
	return rec
}

func phaseRecord(po types.PhaseOutcome) types.PhaseRecord {
	rec := types.PhaseRecord{
		Name:     po.Phase,
		Result:   po.Result,
		Duration: po.Duration,
	}
	if po.Err != nil {
		rec.Error = po.Err.Error()
	}
	return rec
}
