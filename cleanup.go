package openhtf

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// CleanupStack is an ordered list of release actions. Actions are pushed as
// resources are acquired and run in reverse order on Close, so the most
// recently acquired resource is always released first. Close is idempotent
// and safe to call from a goroutine other than the one pushing, which is
// how a concurrent Stop unwinds a run's resources.
type CleanupStack struct {
	logger log.Logger

	mu      sync.Mutex
	closed  bool
	actions []cleanupAction
}

type cleanupAction struct {
	name string
	fn   func() error
}

// NewCleanupStack creates an empty stack.
func NewCleanupStack(logger log.Logger) *CleanupStack {
	return &CleanupStack{logger: logger}
}

// Push appends a release action. After Close the stack is spent and pushes
// are rejected with ErrStackClosed; callers treat that as the signal that a
// stop won the race, not as a programming error.
func (s *CleanupStack) Push(name string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStackClosed
	}
	s.actions = append(s.actions, cleanupAction{name: name, fn: fn})
	return nil
}

// Close runs every pushed action exactly once, in reverse push order.
// A failing or panicking action is logged and does not prevent the
// remaining actions from running. Subsequent calls are no-ops.
func (s *CleanupStack) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	actions := s.actions
	s.actions = nil
	s.mu.Unlock()

	for i := len(actions) - 1; i >= 0; i-- {
		s.runAction(actions[i])
	}
}

func (s *CleanupStack) runAction(a cleanupAction) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Cleanup action panicked", "action", a.name, "panic", r)
		}
	}()
	if err := a.fn(); err != nil {
		s.logger.Error("Cleanup action failed", "action", a.name, "error", err)
	}
}

// Closed reports whether the stack has been spent.
func (s *CleanupStack) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
