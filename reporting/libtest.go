package reporting

import (
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// LibtestReporter prints one line per test followed by the captured output of
// every failure and a summary line.
type LibtestReporter struct {
	out      *errWriter
	paint    painter
	failures []*types.TestRun
}

var _ Reporter = (*LibtestReporter)(nil)

func NewLibtestReporter(out io.Writer, color bool) *LibtestReporter {
	return &LibtestReporter{out: &errWriter{w: out}, paint: painter(color)}
}

func (l *LibtestReporter) Init(suite *types.Suite) {
	noun := "tests"
	if suite.Len() == 1 {
		noun = "test"
	}
	l.out.printf("\nrunning %d %s\n", suite.Len(), noun)
}

func (l *LibtestReporter) Report(run *types.TestRun) {
	l.out.printf("test %s ... %s\n", run.Name(), l.status(run.Outcome))
	if !run.Outcome.IsOK() {
		l.failures = append(l.failures, run)
	}
}

func (l *LibtestReporter) status(o types.Outcome) string {
	switch o.Kind {
	case types.OutcomePassed:
		return l.paint.paint(text.FgGreen, "ok")
	case types.OutcomeSkipped:
		return l.paint.paint(text.FgYellow, "ignored") + ", " + o.Message
	case types.OutcomeTimedOut:
		return l.paint.paint(text.FgRed, "TIMEOUT")
	case types.OutcomeCrashed:
		return l.paint.paint(text.FgRed, "CRASHED") + " (" + o.Detail() + ")"
	case types.OutcomeSpawnError:
		return l.paint.paint(text.FgRed, "ERROR")
	}
	return l.paint.paint(text.FgRed, "FAILED")
}

func (l *LibtestReporter) Done(report *types.Report) error {
	if len(l.failures) > 0 {
		l.out.printf("\nfailures:\n")
		for _, run := range l.failures {
			l.out.printf("\n---- %s ----\n", run.Name())
			l.out.printf("%s\n", run.Outcome)
			if len(run.Stdout) > 0 {
				l.out.printf("---- %s stdout ----\n%s", run.Name(), withNewline(run.StdoutString()))
			}
			if len(run.Stderr) > 0 {
				l.out.printf("---- %s stderr ----\n%s", run.Name(), withNewline(run.StderrString()))
			}
		}
		l.out.printf("\nfailures:\n")
		for _, run := range l.failures {
			l.out.printf("    %s\n", run.Name())
		}
	}

	result := l.paint.paint(text.FgGreen, "ok")
	if !report.Success() {
		result = l.paint.paint(text.FgRed, "FAILED")
	}
	s := report.Summary
	l.out.printf("\ntest result: %s. %d passed; %d failed; %d ignored; finished in %v\n",
		result, s.Passed, s.NotOK(), s.Skipped, report.WallClockTime.Round(10*time.Millisecond))
	if report.Cancelled {
		l.out.printf("run cancelled before every test completed\n")
	}
	return l.out.err
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
