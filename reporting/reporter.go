// Package reporting renders test runs for humans and tools. Reporters are
// driven from a single goroutine: Init once, Report per run in suite order,
// then Done with the final report.
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// Reporter consumes the results of a run
type Reporter interface {
	Init(suite *types.Suite)
	Report(run *types.TestRun)
	Done(report *types.Report) error
}

// Format selects an output format
type Format string

const (
	FormatAuto    Format = "auto"
	FormatTAP     Format = "tap"
	FormatLibtest Format = "libtest"
	FormatJSON    Format = "json"
	FormatTable   Format = "table"
)

// Formats lists every accepted format
var Formats = []Format{FormatAuto, FormatTAP, FormatLibtest, FormatJSON, FormatTable}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// ColorMode controls whether output is coloured
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode validates a colour mode
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(s)); m {
	case ColorAuto, ColorAlways, ColorNever:
		return m, nil
	}
	return "", fmt.Errorf("unknown color mode %q", s)
}

// Enabled resolves the mode against the destination
func (m ColorMode) Enabled(out io.Writer) bool {
	switch m {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	return os.Getenv("NO_COLOR") == "" && IsTerminal(out)
}

// IsTerminal reports whether out is attached to a terminal
func IsTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Options configures a reporter
type Options struct {
	Out   io.Writer
	Color ColorMode
	Title string // table title
}

// New creates the reporter for a format. FormatAuto picks libtest output on a
// terminal and TAP otherwise.
func New(format Format, opts Options) (Reporter, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Color == "" {
		opts.Color = ColorAuto
	}
	color := opts.Color.Enabled(opts.Out)

	switch format {
	case FormatAuto, "":
		if IsTerminal(opts.Out) {
			return NewLibtestReporter(opts.Out, color), nil
		}
		return NewTAPReporter(opts.Out), nil
	case FormatTAP:
		return NewTAPReporter(opts.Out), nil
	case FormatLibtest:
		return NewLibtestReporter(opts.Out, color), nil
	case FormatJSON:
		return NewJSONReporter(opts.Out), nil
	case FormatTable:
		return NewTableReporter(opts.Out, opts.Title, color), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// multiReporter fans every call out to several reporters
type multiReporter []Reporter

// Multi combines reporters. Done returns the first error.
func Multi(reporters ...Reporter) Reporter {
	return multiReporter(reporters)
}

func (m multiReporter) Init(suite *types.Suite) {
	for _, r := range m {
		r.Init(suite)
	}
}

func (m multiReporter) Report(run *types.TestRun) {
	for _, r := range m {
		r.Report(run)
	}
}

func (m multiReporter) Done(report *types.Report) error {
	var first error
	for _, r := range m {
		if err := r.Done(report); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// errWriter remembers the first write error so reporters can surface it from Done
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// painter applies colours only when enabled
type painter bool

func (p painter) paint(c text.Color, s string) string {
	if !p {
		return s
	}
	return c.Sprint(s)
}
