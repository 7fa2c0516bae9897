package types

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// PhaseContext is the view of the in-progress run that a phase function
// receives. It is implemented by state.TestState.
type PhaseContext interface {
	// Logger returns the run-scoped logger.
	Logger() log.Logger
	// UnitID returns the unit-under-test identifier obtained from the
	// start trigger (empty when no trigger was configured).
	UnitID() string
	// Plugs returns the plug manager for this run.
	Plugs() PlugManager
}

// PhaseFunc is a single unit of test logic. The context carries the phase
// timeout; phase functions are expected to honour its cancellation.
type PhaseFunc func(ctx context.Context, t PhaseContext) PhaseResult

// PhaseOptions carries per-phase tunables.
type PhaseOptions struct {
	// Timeout bounds a single execution of the phase. Zero means the
	// engine's default applies.
	Timeout time.Duration
}

// PhaseDescriptor describes one phase of a test.
type PhaseDescriptor struct {
	Name    string
	Run     PhaseFunc
	Options PhaseOptions
}

// WithTimeout returns a copy of the descriptor with the given timeout.
func (p PhaseDescriptor) WithTimeout(d time.Duration) PhaseDescriptor {
	p.Options.Timeout = d
	return p
}

// TestDescriptor is the immutable description of a test run: an ordered
// phase sequence plus identifying metadata. It is owned by the caller and
// read-only to the executor.
type TestDescriptor struct {
	Name   string
	Phases []PhaseDescriptor
}

// Plug is a pluggable hardware/software interface object initialized before
// and torn down after phase execution.
type Plug interface {
	// TearDown releases the plug's resources. Best-effort; must not panic.
	TearDown()
}

// PlugManager owns the plugs of a single run.
type PlugManager interface {
	// InitializePlugs constructs all registered plugs. On failure the
	// manager tears down anything it already initialized before returning.
	InitializePlugs() error
	// TearDownPlugs releases all live plugs. Best-effort and idempotent.
	TearDownPlugs()
	// Plug looks up a live plug by registration name.
	Plug(name string) (Plug, bool)
}
