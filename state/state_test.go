package state

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MFX-eng/openhtf/types"
)

func newTestState(t *testing.T, opts Options) *TestState {
	t.Helper()
	desc := &types.TestDescriptor{Name: "widget-check"}
	return New(desc, log.New(), nil, opts)
}

func TestStatusProgression(t *testing.T) {
	st := newTestState(t, Options{Station: "bench-1"})
	assert.Equal(t, types.StatusCreated, st.Record().Status)

	// The trigger has fired by the time the state exists; what follows is
	// plug setup, then phase execution.
	st.TestStarted("unit-0042")
	assert.Equal(t, types.StatusInitializing, st.Record().Status)

	st.SetStatusRunning()
	assert.Equal(t, types.StatusRunning, st.Record().Status)

	require.NoError(t, st.Finalize(types.OutcomePass))
	assert.Equal(t, types.StatusCompleted, st.Record().Status)
}

func TestFinalizeExactlyOnce(t *testing.T) {
	st := newTestState(t, Options{Station: "bench-1"})

	require.NoError(t, st.Finalize(types.OutcomePass))
	assert.True(t, st.Finalized())
	assert.Equal(t, types.OutcomePass, st.Outcome())

	// A second finalization is rejected and does not change the outcome.
	err := st.Finalize(types.OutcomeAborted)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.Equal(t, types.OutcomePass, st.Outcome())
}

func TestFinalizeDerivesFromEmptySequence(t *testing.T) {
	st := newTestState(t, Options{})
	require.NoError(t, st.Finalize(types.OutcomeUnset))
	assert.Equal(t, types.OutcomePass, st.Outcome())
}

func TestFinalizeDerivesFailAndError(t *testing.T) {
	st := newTestState(t, Options{StopOnFail: false})
	assert.False(t, st.SetStatusFromPhaseOutcome(types.PhaseOutcome{Phase: "a", Result: types.PhaseContinue}))
	assert.False(t, st.SetStatusFromPhaseOutcome(types.PhaseOutcome{Phase: "b", Result: types.PhaseFail}))
	require.NoError(t, st.Finalize(types.OutcomeUnset))
	assert.Equal(t, types.OutcomeFail, st.Outcome())

	st = newTestState(t, Options{StopOnFail: false})
	st.RecordTeardown(types.PhaseOutcome{Phase: "t", Result: types.PhaseTimeout})
	require.NoError(t, st.Finalize(types.OutcomeUnset))
	assert.Equal(t, types.OutcomeError, st.Outcome())
}

func TestSetStatusFromPhaseOutcomeStopOnFail(t *testing.T) {
	st := newTestState(t, Options{StopOnFail: true})
	st.SetStatusRunning()

	halt := st.SetStatusFromPhaseOutcome(types.PhaseOutcome{Phase: "probe", Result: types.PhaseFail})
	assert.True(t, halt)
	assert.True(t, st.Finalized())
	assert.Equal(t, types.OutcomeFail, st.Outcome())
}

func TestSetStatusFromPhaseOutcomeError(t *testing.T) {
	st := newTestState(t, Options{})
	st.SetStatusRunning()

	halt := st.SetStatusFromPhaseOutcome(types.PhaseOutcome{
		Phase:  "probe",
		Result: types.PhaseError,
		Err:    errors.New("probe crashed"),
	})
	assert.True(t, halt)
	assert.Equal(t, types.OutcomeError, st.Outcome())
}

func TestTeardownRecordDoesNotAlterOutcome(t *testing.T) {
	st := newTestState(t, Options{})
	st.SetStatusRunning()
	require.NoError(t, st.Finalize(types.OutcomePass))

	st.RecordTeardown(types.PhaseOutcome{Phase: "teardown", Result: types.PhaseTimeout, Duration: time.Second})

	rec := st.Record()
	assert.Equal(t, types.OutcomePass, rec.Outcome)
	require.Len(t, rec.Phases, 1)
	assert.Equal(t, types.PhaseTimeout, rec.Phases[0].Result)
}

func TestRecordSnapshot(t *testing.T) {
	st := newTestState(t, Options{Station: "bench-2"})
	st.TestStarted("unit-0042")
	st.SetStatusRunning()
	st.SetStatusFromPhaseOutcome(types.PhaseOutcome{Phase: "a", Result: types.PhaseContinue, Duration: 10 * time.Millisecond})
	require.NoError(t, st.Finalize(types.OutcomeUnset))

	rec := st.Record()
	assert.Equal(t, st.RunID(), rec.RunID)
	assert.Equal(t, "widget-check", rec.Test)
	assert.Equal(t, "bench-2", rec.Station)
	assert.Equal(t, "unit-0042", rec.UnitID)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, types.OutcomePass, rec.Outcome)
	assert.True(t, rec.Finalized)
	assert.GreaterOrEqual(t, rec.Duration, time.Duration(0))

	// Mutating the snapshot's phases must not touch the state.
	rec.Phases[0].Name = "tampered"
	assert.Equal(t, "a", st.Record().Phases[0].Name)
}

func TestOutcomeIgnoredAfterFinalize(t *testing.T) {
	st := newTestState(t, Options{})
	require.NoError(t, st.Finalize(types.OutcomeAborted))

	// Late phase outcomes are dropped once the run is terminal.
	halt := st.SetStatusFromPhaseOutcome(types.PhaseOutcome{Phase: "late", Result: types.PhaseContinue})
	assert.True(t, halt)
	assert.Empty(t, st.Record().Phases)
}
