package child

import (
	"fmt"
	"io"

	"github.com/ethereum-optimism/infra/op-isolator/protocol"
)

// Reporter is handed to every test body. It reports stage progress to the
// engine through the side channel and writes log lines to the test's stdout.
type Reporter struct {
	name    string
	out     io.Writer
	results *protocol.Writer
}

func newReporter(name string, out io.Writer, results *protocol.Writer) *Reporter {
	return &Reporter{name: name, out: out, results: results}
}

// Name returns the full name of the running test
func (r *Reporter) Name() string {
	return r.name
}

// Logf writes a line to the test's captured stdout
func (r *Reporter) Logf(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

// StageStarted marks the beginning of a named stage
func (r *Reporter) StageStarted(stage string) {
	_ = r.results.Write(protocol.Record{Kind: protocol.KindStageStart, Stage: stage})
}

// StageFinished marks the end of a named stage
func (r *Reporter) StageFinished(stage string, ok bool) {
	_ = r.results.Write(protocol.Record{Kind: protocol.KindStageEnd, Stage: stage, OK: ok})
}

// Stage runs fn as a named stage, reporting its start and end
func (r *Reporter) Stage(stage string, fn func() error) error {
	r.StageStarted(stage)
	ok := false
	defer func() { r.StageFinished(stage, ok) }()

	if err := fn(); err != nil {
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	ok = true
	return nil
}
