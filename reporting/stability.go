package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-isolator/runner"
)

// RenderStability formats the outcome of repeated runs, one row per test
func RenderStability(report *runner.StabilityReport, color bool) string {
	var buf bytes.Buffer

	tw := table.NewWriter()
	tw.SetOutputMirror(&buf)
	tw.SetTitle(fmt.Sprintf("Stability (%d/%d iterations)", report.Completed, report.Iterations))
	tw.AppendHeader(table.Row{"TEST", "RUNS", "PASSED", "FAILED", "SKIPPED", "PASS RATE", "AVG", "FAILURES", "RECOMMENDATION"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TEST", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "RUNS", Align: text.AlignRight},
		{Name: "PASSED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "SKIPPED", Align: text.AlignRight},
		{Name: "PASS RATE", Align: text.AlignRight},
		{Name: "AVG", Align: text.AlignRight},
	})

	for _, t := range report.Tests {
		tw.AppendRow(table.Row{
			t.TestName,
			t.TotalRuns,
			t.Passes,
			t.Failures,
			t.Skipped,
			fmt.Sprintf("%.1f%%", t.PassRate),
			t.AvgDuration.Round(time.Millisecond),
			t.FailureBreakdown(),
			t.Recommendation,
		})
	}
	unstable := len(report.Unstable())
	tw.AppendFooter(table.Row{"TOTAL", len(report.Tests), "", "", "", "", "", "", fmt.Sprintf("%d unstable", unstable)})

	switch {
	case !color:
		tw.SetStyle(table.StyleDefault)
	case unstable == 0:
		tw.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		tw.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	tw.Render()
	return buf.String()
}
