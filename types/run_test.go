package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeDetail(t *testing.T) {
	tests := []struct {
		outcome  Outcome
		expected string
	}{
		{Passed(), "passed"},
		{Failed("boom"), "failed: boom"},
		{Panicked("index out of range"), "panicked: index out of range"},
		{TimedOut(1500 * time.Millisecond), "timed_out: timed out after 1.5s"},
		{CrashedWithSignal("SIGSEGV"), "crashed: killed by signal SIGSEGV"},
		{CrashedWithCode(2), "crashed: exited with code 2"},
		{SpawnError(errors.New("no such file")), "spawn_error: no such file"},
		{Skipped("not ready"), "skipped: not ready"},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome.Kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.outcome.String())
		})
	}
}

func TestOutcomeIsOK(t *testing.T) {
	assert.True(t, Passed().IsOK())
	assert.True(t, Skipped("x").IsOK())
	assert.False(t, Failed("x").IsOK())
	assert.False(t, Panicked("x").IsOK())
	assert.False(t, TimedOut(time.Second).IsOK())
	assert.False(t, CrashedWithCode(3).IsOK())
	assert.False(t, SpawnError(nil).IsOK())
}

func TestOutcomeEquivalent(t *testing.T) {
	assert.True(t, TimedOut(time.Second).Equivalent(TimedOut(2*time.Second)))
	assert.True(t, Failed("a").Equivalent(Failed("a")))
	assert.False(t, Failed("a").Equivalent(Failed("b")))
	assert.False(t, Failed("a").Equivalent(Panicked("a")))
	assert.True(t, CrashedWithSignal("SIGSEGV").Equivalent(CrashedWithSignal("SIGSEGV")))
	assert.False(t, CrashedWithSignal("SIGSEGV").Equivalent(CrashedWithSignal("SIGABRT")))
	assert.True(t, SpawnError(errors.New("a")).Equivalent(SpawnError(errors.New("b"))))
}

func newRun(name string, outcome Outcome, d time.Duration) *TestRun {
	return &TestRun{Descriptor: NewDescriptor(name), Outcome: outcome, Duration: d}
}

func TestReportSummary(t *testing.T) {
	runs := []*TestRun{
		newRun("a", Passed(), time.Second),
		newRun("b", Failed("x"), time.Second),
		newRun("c", TimedOut(time.Second), 2*time.Second),
		newRun("d", CrashedWithSignal("SIGSEGV"), 0),
		newRun("e", Skipped("later"), 0),
		newRun("f", Panicked("p"), 0),
		newRun("g", SpawnError(errors.New("enoent")), 0),
	}
	report := NewReport("run-1", runs, time.Now(), time.Second, false)

	assert.Equal(t, Summary{
		Total: 7, Passed: 1, Failed: 1, Panicked: 1, TimedOut: 1, Crashed: 1, SpawnErrors: 1, Skipped: 1,
	}, report.Summary)
	assert.Equal(t, 5, report.Summary.NotOK())
	assert.False(t, report.Success())
	assert.Equal(t, 4*time.Second, report.TotalDuration())

	failures := report.Failures()
	names := make([]string, 0, len(failures))
	for _, f := range failures {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"b", "c", "d", "f", "g"}, names)

	run, ok := report.Run("c")
	assert.True(t, ok)
	assert.Equal(t, OutcomeTimedOut, run.Outcome.Kind)
}

func TestReportSuccess(t *testing.T) {
	empty := NewReport("r", nil, time.Now(), 0, false)
	assert.True(t, empty.Success())
	assert.Equal(t, "total=0", empty.Summary.String())

	ok := NewReport("r", []*TestRun{newRun("a", Passed(), 0), newRun("b", Skipped("s"), 0)}, time.Now(), 0, false)
	assert.True(t, ok.Success())
	assert.Equal(t, "total=2 passed=1 skipped=1", ok.Summary.String())

	cancelled := NewReport("r", []*TestRun{newRun("a", Passed(), 0), newRun("b", Skipped("not run"), 0)}, time.Now(), 0, true)
	assert.False(t, cancelled.Success())
}
