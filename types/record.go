package types

import (
	"fmt"
	"time"
)

// PhaseRecord is the persisted result of one phase execution.
type PhaseRecord struct {
	Name     string        `yaml:"name" json:"name"`
	Result   PhaseResult   `yaml:"result" json:"result"`
	Error    string        `yaml:"error,omitempty" json:"error,omitempty"`
	Duration time.Duration `yaml:"duration" json:"duration"`
}

// RecordStats aggregates phase results for a run.
type RecordStats struct {
	Total  int `yaml:"total" json:"total"`
	Passed int `yaml:"passed" json:"passed"`
	Failed int `yaml:"failed" json:"failed"`
	Errors int `yaml:"errors" json:"errors"`
}

// TestRecord is the immutable snapshot of a finished (or in-progress) run.
// Once the run is finalized the record must not be mutated further.
type TestRecord struct {
	RunID     string        `yaml:"run_id" json:"run_id"`
	Test      string        `yaml:"test" json:"test"`
	Station   string        `yaml:"station" json:"station"`
	UnitID    string        `yaml:"unit_id,omitempty" json:"unit_id,omitempty"`
	Status    TestStatus    `yaml:"status" json:"status"`
	Outcome   Outcome       `yaml:"outcome" json:"outcome"`
	Finalized bool          `yaml:"finalized" json:"finalized"`
	StartTime time.Time     `yaml:"start_time" json:"start_time"`
	EndTime   time.Time     `yaml:"end_time" json:"end_time"`
	Duration  time.Duration `yaml:"duration" json:"duration"`
	Phases    []PhaseRecord `yaml:"phases" json:"phases"`
}

// Stats computes the aggregate phase counters for the record.
func (r *TestRecord) Stats() RecordStats {
	s := RecordStats{Total: len(r.Phases)}
	for _, p := range r.Phases {
		switch p.Result {
		case PhaseContinue:
			s.Passed++
		case PhaseFail:
			s.Failed++
		default:
			s.Errors++
		}
	}
	return s
}

func (r *TestRecord) String() string {
	stats := r.Stats()
	return fmt.Sprintf("Test %q on %s (run %s): %s, %d phases, %d passed, %d failed, %d errored in %.1fs",
		r.Test, r.Station, r.RunID, r.Outcome, stats.Total, stats.Passed, stats.Failed, stats.Errors,
		r.Duration.Seconds())
}
