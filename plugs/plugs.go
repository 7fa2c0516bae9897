// Package plugs manages the pluggable hardware/software interface objects a
// test run talks to. Plugs are registered up front, constructed together
// before phase execution, and torn down together afterwards.
package plugs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/MFX-eng/openhtf/types"
)

// Factory constructs a plug for a run.
type Factory func(logger log.Logger) (types.Plug, error)

// Registration binds a plug name to its factory.
type Registration struct {
	Name string
	New  Factory
}

// InitError reports which plug failed to initialize.
type InitError struct {
	Plug string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing plug %q: %v", e.Plug, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// IsInitError checks if the error is or wraps an InitError.
func IsInitError(err error) bool {
	var initErr *InitError
	return err != nil && errors.As(err, &initErr)
}

// Manager owns the plugs of a single run. It implements types.PlugManager.
// Initialization happens once; teardown is best-effort and idempotent.
type Manager struct {
	logger        log.Logger
	registrations []Registration

	// mu guards live, order and tornDown: phase code looks plugs up while
	// a concurrent stop may be tearing them down.
	mu   sync.Mutex
	live map[string]types.Plug
	// order remembers initialization order so teardown can run in reverse.
	order    []string
	tornDown bool
}

var _ types.PlugManager = (*Manager)(nil)

// NewManager creates a manager for the given registrations. Duplicate names
// keep the last registration, matching update-on-re-register semantics.
func NewManager(logger log.Logger, registrations ...Registration) *Manager {
	return &Manager{
		logger:        logger,
		registrations: registrations,
		live:          make(map[string]types.Plug),
	}
}

// InitializePlugs constructs every registered plug in registration order.
// On failure it tears down the plugs it already constructed, since no later
// lifecycle step will, and returns an *InitError.
func (m *Manager) InitializePlugs() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, reg := range m.registrations {
		if reg.New == nil {
			m.tearDownAllLocked()
			return &InitError{Plug: reg.Name, Err: errors.New("nil factory")}
		}
		m.logger.Debug("Initializing plug", "plug", reg.Name)
		plug, err := reg.New(m.logger.New("plug", reg.Name))
		if err != nil {
			m.logger.Error("Plug initialization failed", "plug", reg.Name, "error", err)
			m.tearDownAllLocked()
			return &InitError{Plug: reg.Name, Err: err}
		}
		if _, exists := m.live[reg.Name]; !exists {
			m.order = append(m.order, reg.Name)
		}
		m.live[reg.Name] = plug
	}
	m.tornDown = false
	return nil
}

// TearDownPlugs releases all live plugs in reverse initialization order.
// Individual teardown panics are logged and swallowed so one misbehaving
// plug cannot keep the others alive. Calling it again is a no-op.
func (m *Manager) TearDownPlugs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tearDownAllLocked()
}

func (m *Manager) tearDownAllLocked() {
	if m.tornDown {
		return
	}
	m.tornDown = true

	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		plug, ok := m.live[name]
		if !ok {
			continue
		}
		m.logger.Debug("Tearing down plug", "plug", name)
		m.tearDownOne(name, plug)
		delete(m.live, name)
	}
	m.order = nil
}

func (m *Manager) tearDownOne(name string, plug types.Plug) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Plug teardown panicked", "plug", name, "panic", r)
		}
	}()
	plug.TearDown()
}

// Plug looks up a live plug by name.
func (m *Manager) Plug(name string) (types.Plug, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plug, ok := m.live[name]
	return plug, ok
}
