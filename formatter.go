package openhtf

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/MFX-eng/openhtf/types"
)

// RecordFormatter is responsible for formatting and displaying test records.
type RecordFormatter interface {
	FormatRecord(record *types.TestRecord) error
}

// ConsoleRecordFormatter implements the RecordFormatter interface.
type ConsoleRecordFormatter struct {
	logger log.Logger
}

// NewConsoleRecordFormatter creates a new ConsoleRecordFormatter.
func NewConsoleRecordFormatter(logger log.Logger) *ConsoleRecordFormatter {
	return &ConsoleRecordFormatter{
		logger: logger,
	}
}

// FormatRecord renders the finalized record as a phase table.
func (f *ConsoleRecordFormatter) FormatRecord(record *types.TestRecord) error {
	f.logger.Info("Printing test record...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Test Record %s (%s)", record.RunID, formatDuration(record.Duration)))

	t.AppendHeader(table.Row{
		"Phase", "Result", "Duration", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Phase", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, phase := range record.Phases {
		t.AppendRow(table.Row{
			phase.Name,
			getResultString(phase.Result),
			formatDuration(phase.Duration),
			phase.Error,
		})
	}

	switch record.Outcome {
	case types.OutcomePass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.OutcomeAborted:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	stats := record.Stats()
	t.AppendFooter(table.Row{
		fmt.Sprintf("%s @ %s", record.Test, record.Station),
		record.Outcome,
		formatDuration(record.Duration),
		fmt.Sprintf("%d phases, %d passed, %d failed", stats.Total, stats.Passed, stats.Failed),
	})

	t.Render()

	fmt.Println(record.String())
	return nil
}

// getResultString returns a symbol-annotated string for a phase result
func getResultString(result types.PhaseResult) string {
	switch result {
	case types.PhaseContinue:
		return "✓ pass"
	case types.PhaseFail:
		return "✗ fail"
	case types.PhaseTimeout:
		return "✗ timeout"
	default:
		return "✗ error"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
