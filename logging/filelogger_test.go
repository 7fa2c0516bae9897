package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MFX-eng/openhtf/types"
)

func sampleRecord() *types.TestRecord {
	return &types.TestRecord{
		RunID:     "run-123",
		Test:      "widget-check",
		Station:   "bench-1",
		UnitID:    "unit-0042",
		Outcome:   types.OutcomeFail,
		Finalized: true,
		Duration:  1500 * time.Millisecond,
		Phases: []types.PhaseRecord{
			{Name: "power on", Result: types.PhaseContinue, Duration: 100 * time.Millisecond},
			{Name: "measure", Result: types.PhaseFail, Error: "\x1b[31mreading out of range\x1b[0m", Duration: 1400 * time.Millisecond},
		},
	}
}

func TestNewFileLoggerValidation(t *testing.T) {
	_, err := NewFileLogger("", "run-1")
	require.Error(t, err)

	_, err = NewFileLogger(t.TempDir(), "")
	require.Error(t, err)
}

func TestLogRecordWritesRunDirectory(t *testing.T) {
	base := t.TempDir()
	logger, err := NewFileLogger(base, "run-123")
	require.NoError(t, err)

	require.NoError(t, logger.LogRecord(sampleRecord()))

	runDir := filepath.Join(base, RunDirectoryPrefix+"run-123")
	assert.Equal(t, runDir, logger.Dir())

	summary, err := os.ReadFile(filepath.Join(runDir, SummaryFilename))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "widget-check")
	assert.Contains(t, string(summary), "FAIL")
	assert.Contains(t, string(summary), "unit-0042")
}

func TestLogRecordYAMLRoundTrip(t *testing.T) {
	base := t.TempDir()
	logger, err := NewFileLogger(base, "run-123")
	require.NoError(t, err)
	require.NoError(t, logger.LogRecord(sampleRecord()))

	raw, err := os.ReadFile(filepath.Join(logger.Dir(), RecordFilename))
	require.NoError(t, err)

	var got types.TestRecord
	require.NoError(t, yaml.Unmarshal(raw, &got))
	assert.Equal(t, "run-123", got.RunID)
	assert.Equal(t, types.OutcomeFail, got.Outcome)
	assert.Len(t, got.Phases, 2)
}

func TestPhaseLogsStripANSI(t *testing.T) {
	base := t.TempDir()
	logger, err := NewFileLogger(base, "run-123")
	require.NoError(t, err)
	require.NoError(t, logger.LogRecord(sampleRecord()))

	// Spaces in phase names become underscores on disk.
	phaseLog, err := os.ReadFile(filepath.Join(logger.Dir(), PhaseLogsDirectory, "measure.log"))
	require.NoError(t, err)
	assert.Contains(t, string(phaseLog), "reading out of range")
	assert.NotContains(t, string(phaseLog), "\x1b[31m")

	_, err = os.Stat(filepath.Join(logger.Dir(), PhaseLogsDirectory, "power_on.log"))
	assert.NoError(t, err)
}
