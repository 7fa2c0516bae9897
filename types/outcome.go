package types

import "time"

// Outcome is the terminal classification of a test run.
type Outcome string

const (
	// OutcomeUnset marks a run that has not reached a terminal outcome yet.
	// Passing it to Finalize means "derive the outcome from the phase records".
	OutcomeUnset   Outcome = ""
	OutcomePass    Outcome = "PASS"
	OutcomeFail    Outcome = "FAIL"
	OutcomeError   Outcome = "ERROR"
	OutcomeAborted Outcome = "ABORTED"
)

// Terminal reports whether o is a real terminal outcome.
func (o Outcome) Terminal() bool {
	return o != OutcomeUnset
}

func (o Outcome) String() string {
	if o == OutcomeUnset {
		return "UNSET"
	}
	return string(o)
}

// TestStatus tracks where a run currently is in its lifecycle.
type TestStatus string

const (
	StatusCreated TestStatus = "created"
	// StatusInitializing covers the window between the start-trigger
	// result and phase execution, while plugs are being set up.
	StatusInitializing TestStatus = "initializing"
	StatusRunning      TestStatus = "running"
	StatusCompleted    TestStatus = "completed"
)

// PhaseResult classifies the execution of a single phase.
type PhaseResult string

const (
	// PhaseContinue means the phase passed and the sequence keeps going.
	PhaseContinue PhaseResult = "continue"
	// PhaseFail means the phase's check failed; the stop-on-first-fail
	// policy decides whether the sequence halts.
	PhaseFail PhaseResult = "fail"
	// PhaseError means the phase raised a framework-level failure
	// (returned an unexpected error or panicked).
	PhaseError PhaseResult = "error"
	// PhaseTimeout means the phase exceeded its timeout and was cut off.
	PhaseTimeout PhaseResult = "timeout"
)

// PhaseOutcome is one element of the engine's lazy outcome sequence.
type PhaseOutcome struct {
	Phase    string
	Result   PhaseResult
	Err      error
	Duration time.Duration
}
