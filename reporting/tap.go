package reporting

import (
	"io"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// TAPReporter writes TAP version 13
type TAPReporter struct {
	out   *errWriter
	count int
}

var _ Reporter = (*TAPReporter)(nil)

func NewTAPReporter(out io.Writer) *TAPReporter {
	return &TAPReporter{out: &errWriter{w: out}}
}

func (t *TAPReporter) Init(suite *types.Suite) {
	t.out.printf("TAP version 13\n")
	t.out.printf("1..%d\n", suite.Len())
}

func (t *TAPReporter) Report(run *types.TestRun) {
	t.count++
	o := run.Outcome
	d := run.Duration.Round(time.Millisecond)

	switch o.Kind {
	case types.OutcomeSkipped:
		t.out.printf("ok %d - %s # SKIP %s\n", t.count, run.Name(), o.Message)
		return
	case types.OutcomePassed:
		t.out.printf("ok %d - %s\n", t.count, run.Name())
		t.out.printf("# completed in %v\n", d)
		return
	}

	t.out.printf("not ok %d - %s\n", t.count, run.Name())
	switch o.Kind {
	case types.OutcomeFailed:
		if o.ExitCode > 0 {
			t.out.printf("# process returned %d after %v\n", o.ExitCode, d)
		} else {
			t.out.printf("# process failed after %v\n", d)
		}
	case types.OutcomePanicked:
		t.out.printf("# process panicked after %v\n", d)
	case types.OutcomeCrashed:
		if o.Signal != "" {
			t.out.printf("# process was killed with %s after %v\n", o.Signal, d)
		} else {
			t.out.printf("# process returned %d after %v\n", o.ExitCode, d)
		}
	case types.OutcomeTimedOut:
		t.out.printf("# timed out after %v\n", o.Elapsed.Round(time.Millisecond))
	case types.OutcomeSpawnError:
		t.out.printf("# %s\n", o.Detail())
	}
	if o.Message != "" {
		t.comment("", o.Message)
	}
	if len(run.Stdout) > 0 {
		t.comment("--- stdout ---", run.StdoutString())
	}
	if len(run.Stderr) > 0 {
		t.comment("--- stderr ---", run.StderrString())
	}
}

func (t *TAPReporter) comment(header, body string) {
	if header != "" {
		t.out.printf("# %s\n", header)
	}
	for _, line := range strings.Split(strings.TrimRight(stripansi.Strip(body), "\n"), "\n") {
		t.out.printf("# %s\n", line)
	}
}

func (t *TAPReporter) Done(report *types.Report) error {
	if report.Cancelled {
		t.out.printf("# run cancelled\n")
	}
	return t.out.err
}
