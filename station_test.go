package openhtf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MFX-eng/openhtf/types"
)

// captureReporter counts reported records and keeps the latest one.
type captureReporter struct {
	mu    sync.Mutex
	count int
	last  *types.TestRecord
	ch    chan struct{} // Signals on each report
}

func newCaptureReporter() *captureReporter {
	return &captureReporter{ch: make(chan struct{}, 100)}
}

func (r *captureReporter) ReportRecord(record *types.TestRecord) {
	r.mu.Lock()
	r.count++
	r.last = record
	r.mu.Unlock()

	select {
	case r.ch <- struct{}{}:
	default:
	}
}

func (r *captureReporter) reports() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// waitForReports waits until the reporter has seen at least count records.
func (r *captureReporter) waitForReports(count int) bool {
	timeout := time.After(2 * time.Second)
	for {
		if r.reports() >= count {
			return true
		}
		select {
		case <-r.ch:
		case <-time.After(10 * time.Millisecond):
		case <-timeout:
			return false
		}
	}
}

type nopFormatter struct{}

func (nopFormatter) FormatRecord(record *types.TestRecord) error { return nil }

// setupStation creates a station around a real passing (or failing) test with
// the console formatter and metrics reporter swapped for quiet fakes.
func setupStation(t *testing.T, interval time.Duration, phases ...types.PhaseDescriptor) (*Station, *captureReporter) {
	t.Helper()

	cfg := &Config{
		StationName:     "bench-1",
		TeardownTimeout: 500 * time.Millisecond,
		StopOnFirstFail: true,
		RunInterval:     interval,
		RunOnce:         interval == 0,
		Log:             log.New(),
	}
	test := &types.TestDescriptor{Name: "bench-test", Phases: phases}

	s, err := NewStation(context.Background(), cfg, "v0.0.0-test", test, func(error) {})
	require.NoError(t, err)

	reporter := newCaptureReporter()
	s.formatter = nopFormatter{}
	s.reporter = reporter
	return s, reporter
}

func teardownStation(t *testing.T, s *Station) {
	t.Helper()

	if !s.Stopped() {
		require.NoError(t, s.Stop(context.Background()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := s.WaitForShutdown(ctx); err != nil {
		t.Logf("Warning: station did not shut down cleanly in teardown: %v", err)
	}
}

func TestStationRunOncePass(t *testing.T) {
	s, reporter := setupStation(t, 0,
		types.PhaseDescriptor{Name: "check", Run: passPhase},
	)
	defer teardownStation(t, s)

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, 1, reporter.reports())
	record := s.Record()
	require.NotNil(t, record)
	assert.Equal(t, types.OutcomePass, record.Outcome)
	assert.Equal(t, "bench-1", record.Station)
}

func TestStationRunOnceFailureReturnsTestFailure(t *testing.T) {
	s, _ := setupStation(t, 0,
		types.PhaseDescriptor{Name: "measure", Run: failPhase},
	)
	defer teardownStation(t, s)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))

	record := s.Record()
	require.NotNil(t, record)
	assert.Equal(t, types.OutcomeFail, record.Outcome)
}

func TestStationContinuousModeCycles(t *testing.T) {
	s, reporter := setupStation(t, 25*time.Millisecond,
		types.PhaseDescriptor{Name: "check", Run: passPhase},
	)
	defer teardownStation(t, s)

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.Stopped())

	// One immediate run plus at least one scheduled cycle.
	assert.True(t, reporter.waitForReports(2), "expected at least two test cycles")

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, s.Stopped())
}

func TestStationStopIsIdempotent(t *testing.T) {
	s, _ := setupStation(t, 25*time.Millisecond,
		types.PhaseDescriptor{Name: "check", Run: passPhase},
	)
	defer teardownStation(t, s)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, s.Stopped())
}

func TestStationStopAbortsInFlightRun(t *testing.T) {
	started := make(chan struct{}, 1)
	s, reporter := setupStation(t, 25*time.Millisecond,
		types.PhaseDescriptor{Name: "block", Run: func(ctx context.Context, t types.PhaseContext) types.PhaseResult {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return types.PhaseError
		}},
	)
	defer teardownStation(t, s)

	// Start blocks on the in-flight run, so drive it from a goroutine.
	startDone := make(chan error, 1)
	go func() {
		startDone <- s.Start(context.Background())
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("test phase never started")
	}
	require.NoError(t, s.Stop(context.Background()))

	select {
	case err := <-startDone:
		// The aborted run-once result surfaces as a test failure.
		if err != nil {
			assert.True(t, IsTestFailureError(err) || IsRuntimeError(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	assert.True(t, reporter.waitForReports(1))
	record := s.Record()
	require.NotNil(t, record)
	assert.Equal(t, types.OutcomeAborted, record.Outcome)
}

func TestStationRequiresConfigAndTest(t *testing.T) {
	test := &types.TestDescriptor{Name: "bench-test"}
	_, err := NewStation(context.Background(), nil, "v0", test, func(error) {})
	require.Error(t, err)

	cfg := &Config{StationName: "bench-1", Log: log.New()}
	_, err = NewStation(context.Background(), cfg, "v0", nil, func(error) {})
	require.Error(t, err)
}
