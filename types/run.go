package types

import (
	"fmt"
	"strings"
	"time"
)

// StageEvent is a progress marker a test reported through the side channel
type StageEvent struct {
	Stage string
	Start bool // true for stage start, false for stage end
	OK    bool // stage result, only meaningful when Start is false
	Time  time.Time
}

// TestRun pairs a descriptor with its outcome and everything captured from its
// process. It is created once the child has terminated and is not modified afterwards.
type TestRun struct {
	Descriptor TestDescriptor
	Outcome    Outcome
	Stdout     []byte
	Stderr     []byte
	StartTime  time.Time
	Duration   time.Duration
	Stages     []StageEvent

	StdoutTruncated bool  // only the tail of stdout was kept
	StderrTruncated bool  // only the tail of stderr was kept
	StdoutBytes     int64 // bytes the child wrote to stdout, dropped ones included
	StderrBytes     int64 // bytes the child wrote to stderr, dropped ones included
}

// Name returns the descriptor's name
func (r *TestRun) Name() string {
	return r.Descriptor.Name()
}

// StdoutString returns stdout as text
func (r *TestRun) StdoutString() string {
	return string(r.Stdout)
}

// StderrString returns stderr as text
func (r *TestRun) StderrString() string {
	return string(r.Stderr)
}

// Summary holds per-outcome counts for a report
type Summary struct {
	Total       int
	Passed      int
	Failed      int
	Panicked    int
	TimedOut    int
	Crashed     int
	SpawnErrors int
	Skipped     int
}

// Add counts one outcome
func (s *Summary) Add(kind OutcomeKind) {
	s.Total++
	switch kind {
	case OutcomePassed:
		s.Passed++
	case OutcomeFailed:
		s.Failed++
	case OutcomePanicked:
		s.Panicked++
	case OutcomeTimedOut:
		s.TimedOut++
	case OutcomeCrashed:
		s.Crashed++
	case OutcomeSpawnError:
		s.SpawnErrors++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// Count returns the number of runs with the given outcome
func (s Summary) Count(kind OutcomeKind) int {
	switch kind {
	case OutcomePassed:
		return s.Passed
	case OutcomeFailed:
		return s.Failed
	case OutcomePanicked:
		return s.Panicked
	case OutcomeTimedOut:
		return s.TimedOut
	case OutcomeCrashed:
		return s.Crashed
	case OutcomeSpawnError:
		return s.SpawnErrors
	case OutcomeSkipped:
		return s.Skipped
	default:
		return 0
	}
}

// NotOK returns the number of runs that make the overall run fail
func (s Summary) NotOK() int {
	return s.Total - s.Passed - s.Skipped
}

func (s Summary) String() string {
	var parts []string
	for _, kind := range AllOutcomeKinds {
		if n := s.Count(kind); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	if len(parts) == 0 {
		return "total=0"
	}
	return fmt.Sprintf("total=%d %s", s.Total, strings.Join(parts, " "))
}

// Report is the complete result of running a suite. Runs are listed in suite order.
type Report struct {
	RunID         string
	Runs          []*TestRun
	Summary       Summary
	StartTime     time.Time
	WallClockTime time.Duration
	Cancelled     bool // the run was interrupted before every test executed
}

// NewReport computes the summary for an ordered list of runs
func NewReport(runID string, runs []*TestRun, start time.Time, wallClock time.Duration, cancelled bool) *Report {
	r := &Report{
		RunID:         runID,
		Runs:          runs,
		StartTime:     start,
		WallClockTime: wallClock,
		Cancelled:     cancelled,
	}
	for _, run := range runs {
		r.Summary.Add(run.Outcome.Kind)
	}
	return r
}

// Success reports whether every test passed or was skipped and the run completed
func (r *Report) Success() bool {
	return !r.Cancelled && r.Summary.NotOK() == 0
}

// Run returns the run for a test name
func (r *Report) Run(name string) (*TestRun, bool) {
	for _, run := range r.Runs {
		if run.Name() == name {
			return run, true
		}
	}
	return nil, false
}

// Failures returns the runs that did not pass or skip, in suite order
func (r *Report) Failures() []*TestRun {
	var failed []*TestRun
	for _, run := range r.Runs {
		if !run.Outcome.IsOK() {
			failed = append(failed, run)
		}
	}
	return failed
}

// TotalDuration sums the durations of every run
func (r *Report) TotalDuration() time.Duration {
	var total time.Duration
	for _, run := range r.Runs {
		total += run.Duration
	}
	return total
}
