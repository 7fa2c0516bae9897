package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MFX-eng/openhtf/types"
)

const (
	MetricsNamespace = "htf"
)

var (
	Debug                bool = true
	validOutcomes             = []types.Outcome{types.OutcomePass, types.OutcomeFail, types.OutcomeError, types.OutcomeAborted}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	phasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "phases_total",
		Help:      "Count of executed phases",
	}, []string{
		"station",
		"run_id",
		"phase",
		"result",
	})

	testRunResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "test_run_results",
		Help:      "Outcome of test runs",
	}, []string{
		"station",
		"run_id",
		"outcome",
	})

	testRunPhaseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_run_phase_total",
		Help:      "Total number of phases in a test run",
	}, []string{
		"station",
		"run_id",
	})

	testRunPhasePassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_run_phase_passed",
		Help:      "Number of passed phases in a test run",
	}, []string{
		"station",
		"run_id",
	})

	testRunPhaseFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_run_phase_failed",
		Help:      "Number of failed phases in a test run",
	}, []string{
		"station",
		"run_id",
	})

	testRunDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "test_run_duration",
		Help:      "Duration of test runs",
	}, []string{
		"station",
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordPhase counts one phase execution.
func RecordPhase(station string, runID string, phase string, result types.PhaseResult) {
	if Debug {
		log.Debug("metric inc",
			"m", "phases_total",
			"station", station,
			"run_id", runID,
			"phase", phase,
			"result", result)
	}
	phasesTotal.WithLabelValues(station, runID, phase, string(result)).Inc()
}

// RecordTestRun reports the terminal outcome and aggregate counters of a
// finished run.
func RecordTestRun(
	station string,
	runID string,
	outcome types.Outcome,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	if !isValidOutcome(outcome) {
		log.Error("RecordTestRun - invalid outcome", "outcome", outcome)
		return
	}
	testRunResults.WithLabelValues(station, runID, string(outcome)).Set(1)
	testRunPhaseTotal.WithLabelValues(station, runID).Add(float64(total))
	testRunPhasePassed.WithLabelValues(station, runID).Add(float64(passed))
	testRunPhaseFailed.WithLabelValues(station, runID).Add(float64(failed))
	testRunDuration.WithLabelValues(station, runID).Set(duration.Seconds())
}

func isValidOutcome(outcome types.Outcome) bool {
	return slices.Contains(validOutcomes, outcome)
}
