// Package logging persists finalized test records to per-run directories so
// a bench operator can inspect a run after the fact.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"gopkg.in/yaml.v3"

	"github.com/MFX-eng/openhtf/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.log"
	RecordFilename     = "record.yaml"
	PhaseLogsDirectory = "phases"
)

// FileLogger handles writing one run's record to files under
// <baseDir>/testrun-<runID>/.
type FileLogger struct {
	baseDir string
	logDir  string
	mu      sync.Mutex
}

// NewFileLogger creates the run directory and returns a logger for it.
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	for _, dir := range []string{baseDir, logDir, filepath.Join(logDir, PhaseLogsDirectory)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &FileLogger{baseDir: baseDir, logDir: logDir}, nil
}

// Dir returns the run's log directory.
func (l *FileLogger) Dir() string {
	return l.logDir
}

// LogRecord writes the record summary, the full YAML record, and one log
// file per phase. Phase errors frequently carry ANSI colour codes from
// instrument output; those are stripped before hitting disk.
func (l *FileLogger) LogRecord(record *types.TestRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeSummary(record); err != nil {
		return err
	}
	if err := l.writeRecordYAML(record); err != nil {
		return err
	}
	for _, phase := range record.Phases {
		if err := l.writePhaseLog(phase); err != nil {
			return err
		}
	}
	return nil
}

func (l *FileLogger) writeSummary(record *types.TestRecord) error {
	stats := record.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "Run:      %s\n", record.RunID)
	fmt.Fprintf(&b, "Test:     %s\n", record.Test)
	fmt.Fprintf(&b, "Station:  %s\n", record.Station)
	if record.UnitID != "" {
		fmt.Fprintf(&b, "Unit:     %s\n", record.UnitID)
	}
	fmt.Fprintf(&b, "Outcome:  %s\n", record.Outcome)
	fmt.Fprintf(&b, "Duration: %.1fs\n", record.Duration.Seconds())
	fmt.Fprintf(&b, "Phases:   %d total, %d passed, %d failed, %d errored\n",
		stats.Total, stats.Passed, stats.Failed, stats.Errors)

	path := filepath.Join(l.logDir, SummaryFilename)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

func (l *FileLogger) writeRecordYAML(record *types.TestRecord) error {
	raw, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	path := filepath.Join(l.logDir, RecordFilename)
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

func (l *FileLogger) writePhaseLog(phase types.PhaseRecord) error {
	var b strings.Builder
	fmt.Fprintf(&b, "phase:    %s\n", phase.Name)
	fmt.Fprintf(&b, "result:   %s\n", phase.Result)
	fmt.Fprintf(&b, "duration: %.3fs\n", phase.Duration.Seconds())
	if phase.Error != "" {
		fmt.Fprintf(&b, "error:    %s\n", stripansi.Strip(phase.Error))
	}

	path := filepath.Join(l.logDir, PhaseLogsDirectory, sanitizeFilename(phase.Name)+".log")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing phase log for %s: %w", phase.Name, err)
	}
	return nil
}

// sanitizeFilename keeps phase names filesystem-safe.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	return replacer.Replace(name)
}
