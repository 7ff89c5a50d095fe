package reporting

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// TableReporter renders a results table once the run is done
type TableReporter struct {
	out   io.Writer
	title string
	color bool
	runs  []*types.TestRun
}

var _ Reporter = (*TableReporter)(nil)

func NewTableReporter(out io.Writer, title string, color bool) *TableReporter {
	if title == "" {
		title = "Test Results"
	}
	return &TableReporter{out: out, title: title, color: color}
}

func (t *TableReporter) Init(suite *types.Suite) {
	t.runs = make([]*types.TestRun, 0, suite.Len())
}

func (t *TableReporter) Report(run *types.TestRun) {
	t.runs = append(t.runs, run)
}

func (t *TableReporter) Done(report *types.Report) error {
	_, err := io.WriteString(t.out, t.Render(report))
	return err
}

// Render formats the collected runs
func (t *TableReporter) Render(report *types.Report) string {
	var buf bytes.Buffer

	tw := table.NewWriter()
	tw.SetOutputMirror(&buf)
	tw.SetTitle(t.title)
	tw.AppendHeader(table.Row{"TEST", "OUTCOME", "DURATION", "DETAIL"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TEST", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "DETAIL", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, run := range t.runs {
		tw.AppendRow(table.Row{
			run.Name(),
			strings.ToUpper(string(run.Outcome.Kind)),
			run.Duration.Round(time.Millisecond),
			run.Outcome.Detail(),
		})
	}

	status := "PASS"
	if !report.Success() {
		status = "FAIL"
	}
	s := report.Summary
	tw.AppendFooter(table.Row{
		"TOTAL",
		status,
		report.WallClockTime.Round(time.Millisecond),
		s.String(),
	})

	switch {
	case !t.color:
		tw.SetStyle(table.StyleDefault)
	case report.Success():
		tw.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		tw.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	tw.Render()
	return buf.String()
}
