package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// JSONReporter writes one JSON object per line: a "test" event per run and a
// final "summary" event.
type JSONReporter struct {
	enc *json.Encoder
	err error
}

var _ Reporter = (*JSONReporter)(nil)

// TestEvent is the JSON form of a run
type TestEvent struct {
	Type            string        `json:"type"`
	Name            string        `json:"name"`
	Outcome         string        `json:"outcome"`
	Detail          string        `json:"detail,omitempty"`
	DurationMS      int64         `json:"duration_ms"`
	Tags            []string      `json:"tags,omitempty"`
	Stdout          string        `json:"stdout,omitempty"`
	Stderr          string        `json:"stderr,omitempty"`
	StdoutBase64    []byte        `json:"stdout_b64,omitempty"` // set instead of Stdout when it is not valid UTF-8
	StderrBase64    []byte        `json:"stderr_b64,omitempty"` // set instead of Stderr when it is not valid UTF-8
	StdoutTruncated bool          `json:"stdout_truncated,omitempty"`
	StderrTruncated bool          `json:"stderr_truncated,omitempty"`
	StdoutBytes     int64         `json:"stdout_bytes,omitempty"` // total written, when truncated
	StderrBytes     int64         `json:"stderr_bytes,omitempty"` // total written, when truncated
	Stages          []StageRecord `json:"stages,omitempty"`
}

type StageRecord struct {
	Stage string `json:"stage"`
	Start bool   `json:"start"`
	OK    bool   `json:"ok"`
}

// SummaryEvent is the JSON form of a report
type SummaryEvent struct {
	Type        string `json:"type"`
	RunID       string `json:"run_id"`
	Total       int    `json:"total"`
	Passed      int    `json:"passed"`
	Failed      int    `json:"failed"`
	Panicked    int    `json:"panicked"`
	TimedOut    int    `json:"timed_out"`
	Crashed     int    `json:"crashed"`
	SpawnErrors int    `json:"spawn_errors"`
	Skipped     int    `json:"skipped"`
	Cancelled   bool   `json:"cancelled"`
	Success     bool   `json:"success"`
	WallClockMS int64  `json:"wall_clock_ms"`
}

func NewJSONReporter(out io.Writer) *JSONReporter {
	return &JSONReporter{enc: json.NewEncoder(out)}
}

func (j *JSONReporter) Init(*types.Suite) {}

func (j *JSONReporter) Report(run *types.TestRun) {
	ev := TestEvent{
		Type:            "test",
		Name:            run.Name(),
		Outcome:         string(run.Outcome.Kind),
		Detail:          run.Outcome.Detail(),
		DurationMS:      run.Duration.Milliseconds(),
		Tags:            run.Descriptor.Tags(),
		StdoutTruncated: run.StdoutTruncated,
		StderrTruncated: run.StderrTruncated,
	}
	ev.Stdout, ev.StdoutBase64 = textOrBytes(run.Stdout)
	ev.Stderr, ev.StderrBase64 = textOrBytes(run.Stderr)
	if run.StdoutTruncated {
		ev.StdoutBytes = run.StdoutBytes
	}
	if run.StderrTruncated {
		ev.StderrBytes = run.StderrBytes
	}
	for _, s := range run.Stages {
		ev.Stages = append(ev.Stages, StageRecord{Stage: s.Stage, Start: s.Start, OK: s.OK})
	}
	j.encode(ev)
}

func (j *JSONReporter) Done(report *types.Report) error {
	s := report.Summary
	j.encode(SummaryEvent{
		Type:        "summary",
		RunID:       report.RunID,
		Total:       s.Total,
		Passed:      s.Passed,
		Failed:      s.Failed,
		Panicked:    s.Panicked,
		TimedOut:    s.TimedOut,
		Crashed:     s.Crashed,
		SpawnErrors: s.SpawnErrors,
		Skipped:     s.Skipped,
		Cancelled:   report.Cancelled,
		Success:     report.Success(),
		WallClockMS: report.WallClockTime.Milliseconds(),
	})
	return j.err
}

func (j *JSONReporter) encode(v any) {
	if j.err != nil {
		return
	}
	if err := j.enc.Encode(v); err != nil {
		j.err = fmt.Errorf("failed to write json event: %w", err)
	}
}

// textOrBytes keeps output as a string when it survives JSON encoding intact.
// Anything else is emitted base64 encoded so no byte is replaced.
func textOrBytes(b []byte) (string, []byte) {
	if utf8.Valid(b) {
		return string(b), nil
	}
	return "", b
}
