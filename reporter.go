package openhtf

import (
	"github.com/MFX-eng/openhtf/metrics"
	"github.com/MFX-eng/openhtf/types"
)

// MetricsReporter is responsible for reporting metrics from test records.
type MetricsReporter interface {
	ReportRecord(record *types.TestRecord)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportRecord reports a finalized test record to the metrics system.
func (r *DefaultMetricsReporter) ReportRecord(record *types.TestRecord) {
	stats := record.Stats()
	for _, phase := range record.Phases {
		metrics.RecordPhase(record.Station, record.RunID, phase.Name, phase.Result)
	}
	metrics.RecordTestRun(
		record.Station,
		record.RunID,
		record.Outcome,
		stats.Total,
		stats.Passed,
		stats.Failed,
		record.Duration,
	)
}
