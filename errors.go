package openhtf

import (
	"errors"
	"fmt"
)

var (
	// ErrTestStopped signals that the run was stopped externally before it
	// could finish, including the case where Stop wins the race against the
	// worker's cleanup-stack installation.
	ErrTestStopped = errors.New("test stopped")

	// ErrAlreadyStarted is the usage error for starting an executor (or its
	// worker) twice.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is the usage error for waiting on a run that was never
	// started.
	ErrNotStarted = errors.New("not started")

	// ErrStackClosed rejects pushes onto a spent cleanup stack.
	ErrStackClosed = errors.New("cleanup stack closed")
)

// RuntimeError represents an operational failure of the framework itself
// (plug wiring, configuration, worker crashes) that should lead to exit
// code 2, as opposed to a test failing its checks.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents a run that finished with a non-PASS outcome
// (exit code 1).
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
