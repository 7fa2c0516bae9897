package openhtf

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/MFX-eng/openhtf/exitcodes"
	"github.com/MFX-eng/openhtf/logging"
	"github.com/MFX-eng/openhtf/plugs"
	"github.com/MFX-eng/openhtf/types"
)

// Station implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Station{}

// Station is a test station service: it runs the configured test once per
// trigger cycle, finalizes the record, renders and reports it, and either
// exits (run-once) or keeps cycling at the configured interval.
type Station struct {
	ctx     context.Context
	config  *Config
	version string

	test     *types.TestDescriptor
	trigger  StartTrigger
	teardown *types.PhaseDescriptor
	plugRegs []plugs.Registration

	formatter RecordFormatter
	reporter  MetricsReporter

	mu       sync.Mutex
	record   *types.TestRecord
	executor *TestExecutor

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

// StationOption customises a Station.
type StationOption func(*Station)

// WithStationTrigger installs the start trigger used for every cycle.
func WithStationTrigger(trigger StartTrigger) StationOption {
	return func(s *Station) { s.trigger = trigger }
}

// WithStationTeardown installs the per-run teardown phase.
func WithStationTeardown(ph types.PhaseDescriptor) StationOption {
	return func(s *Station) { s.teardown = &ph }
}

// WithStationPlugs registers the plugs constructed for every run.
func WithStationPlugs(regs ...plugs.Registration) StationOption {
	return func(s *Station) { s.plugRegs = regs }
}

// NewStation creates a station service for the given test.
func NewStation(ctx context.Context, config *Config, version string, test *types.TestDescriptor,
	shutdownCallback func(error), opts ...StationOption) (*Station, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if test == nil {
		return nil, errors.New("test descriptor is required")
	}

	config.Log.Debug("Creating station with config",
		"station", config.StationName,
		"test", test.Name,
		"teardownTimeout", config.TeardownTimeout,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	s := &Station{
		ctx:              ctx,
		config:           config,
		version:          version,
		test:             test,
		formatter:        NewConsoleRecordFormatter(config.Log),
		reporter:         NewDefaultMetricsReporter(),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs the test once, then keeps cycling at the configured interval.
// Start implements the cliapp.Lifecycle interface.
func (s *Station) Start(ctx context.Context) error {
	// Panic recovery so runtime errors exit with code 2 rather than a bare
	// stack trace.
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	s.ctx = ctx
	s.done = make(chan struct{})
	s.running.Store(true)

	if s.config.RunOnce {
		s.config.Log.Info("Starting test station in run-once mode", "station", s.config.StationName)
	} else {
		s.config.Log.Info("Starting test station in continuous mode",
			"station", s.config.StationName, "interval", s.config.RunInterval)
	}

	if err := s.runTest(ctx); err != nil {
		s.config.Log.Error("Runtime error running test", "error", err)
		return NewRuntimeError(err)
	}

	if s.config.RunOnce {
		s.config.Log.Info("Test completed, exiting (run-once mode)")

		if record := s.Record(); record != nil && record.Outcome != types.OutcomePass {
			return NewTestFailureError(record.String())
		}

		go func() {
			s.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	scheduler := NewScheduler(s.config.RunInterval, s.config.Log)
	scheduler.RegisterCallback(func() error {
		return s.runTest(s.ctx)
	})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scheduler.Run(s.ctx, s.done, &s.running)
	}()

	s.config.Log.Debug("Test station started successfully")
	return nil
}

// runTest drives one executor through a full run and processes the record.
func (s *Station) runTest(ctx context.Context) error {
	executor := NewTestExecutor(s.config, s.test, s.executorOptions()...)

	s.mu.Lock()
	s.executor = executor
	s.mu.Unlock()

	if err := executor.Start(ctx); err != nil {
		return err
	}

	waitErr := executor.Wait(ctx)
	st, err := executor.Finalize()
	if err != nil {
		// The run was stopped before a TestState existed; nothing to report.
		s.config.Log.Warn("Run stopped before a test record was created", "error", waitErr)
		return nil
	}
	record := st.Record()
	s.mu.Lock()
	s.record = record
	s.mu.Unlock()

	if err := s.formatter.FormatRecord(record); err != nil {
		s.config.Log.Error("Error formatting test record", "error", err)
	}
	s.reporter.ReportRecord(record)
	s.logRecordToFile(record)

	s.config.Log.Info("Test run completed",
		"run_id", record.RunID, "outcome", record.Outcome)

	// A stop or an abort is an expected way for a run to end; only
	// framework-level failures bubble up as runtime errors.
	if waitErr != nil && !errors.Is(waitErr, ErrTestStopped) && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	return nil
}

// logRecordToFile persists the finalized record under the log directory.
func (s *Station) logRecordToFile(record *types.TestRecord) {
	if s.config.LogDir == "" {
		return
	}
	fileLogger, err := logging.NewFileLogger(s.config.LogDir, record.RunID)
	if err != nil {
		s.config.Log.Error("Error creating file logger", "error", err)
		return
	}
	if err := fileLogger.LogRecord(record); err != nil {
		s.config.Log.Error("Error writing test record logs", "error", err)
		return
	}
	s.config.Log.Info("Test record logged", "dir", fileLogger.Dir())
}

func (s *Station) executorOptions() []Option {
	var opts []Option
	if s.trigger != nil {
		opts = append(opts, WithStartTrigger(s.trigger))
	}
	if s.teardown != nil {
		opts = append(opts, WithTeardown(*s.teardown))
	}
	if len(s.plugRegs) > 0 {
		opts = append(opts, WithPlugs(plugs.NewManager(s.config.Log, s.plugRegs...)))
	}
	return opts
}

// Stop stops the station service and any in-flight run.
// Stop implements the cliapp.Lifecycle interface.
func (s *Station) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping test station")

	if !s.running.Load() {
		s.config.Log.Debug("Station already stopped, nothing to do")
		return nil
	}

	// Update running state first to prevent new test runs
	s.running.Store(false)

	s.mu.Lock()
	executor := s.executor
	s.mu.Unlock()
	if executor != nil {
		executor.Stop()
	}

	close(s.done)

	s.config.Log.Info("Test station stopped successfully")
	return nil
}

// Stopped returns true if the station service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (s *Station) Stopped() bool {
	return !s.running.Load()
}

// Record returns the most recent finalized test record, if any.
func (s *Station) Record() *types.TestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (s *Station) WaitForShutdown(ctx context.Context) error {
	s.config.Log.Debug("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Log.Debug("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		s.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
