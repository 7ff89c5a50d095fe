// Package logging persists the output of every test of a run under
// <base>/testrun-<runID>/ so failures can be inspected after the fact.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-isolator/reporting"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

const (
	RunDirectoryPrefix = "testrun-"
	PassedDirName      = "passed"
	FailedDirName      = "failed"
	SummaryFileName    = "summary.log"
	AllLogsFileName    = "all.log"
)

// FileLogger writes one file per test into passed/ or failed/, appends every
// test to all.log and writes summary.log when the run is done.
type FileLogger struct {
	baseDir     string
	logDir      string
	passedDir   string
	failedDir   string
	summaryFile string
	allLogsFile string
	runID       string

	mu       sync.Mutex
	allLogs  *AsyncFile
	count    int
	testLogs map[string]string
	err      error
}

var _ reporting.Reporter = (*FileLogger)(nil)

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	err     error
}

// NewAsyncFile creates the file and starts its background writer
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af, nil
}

// Write queues a copy of data
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}
	af.queue <- append([]byte(nil), data...)
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()
	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil && af.err == nil {
			af.err = err
		}
	}
}

// Close drains the queue and closes the file. It returns the first write error.
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if af.stopped {
		af.mu.Unlock()
		return nil
	}
	af.stopped = true
	close(af.queue)
	af.mu.Unlock()

	af.wg.Wait()
	closeErr := af.file.Close()
	if af.err != nil {
		return af.err
	}
	return closeErr
}

// NewFileLogger creates the run directory layout
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	l := &FileLogger{
		baseDir:     baseDir,
		logDir:      logDir,
		passedDir:   filepath.Join(logDir, PassedDirName),
		failedDir:   filepath.Join(logDir, FailedDirName),
		summaryFile: filepath.Join(logDir, SummaryFileName),
		allLogsFile: filepath.Join(logDir, AllLogsFileName),
		runID:       runID,
		testLogs:    make(map[string]string),
	}

	for _, dir := range []string{logDir, l.passedDir, l.failedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	allLogs, err := NewAsyncFile(l.allLogsFile)
	if err != nil {
		return nil, err
	}
	l.allLogs = allLogs
	return l, nil
}

func (l *FileLogger) Init(suite *types.Suite) {
	l.record(l.allLogs.Write([]byte(fmt.Sprintf("run %s: %d tests\n", l.runID, suite.Len()))))
}

// Report writes the test's own log file and appends it to all.log
func (l *FileLogger) Report(run *types.TestRun) {
	content := formatTestLog(run)

	l.mu.Lock()
	l.count++
	dir := l.passedDir
	if !run.Outcome.IsOK() {
		dir = l.failedDir
	}
	path := filepath.Join(dir, fmt.Sprintf("%04d-%s.log", l.count, safeFilename(run.Name())))
	l.testLogs[run.Name()] = path
	l.mu.Unlock()

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		l.record(fmt.Errorf("failed to write test log %s: %w", path, err))
	}
	l.record(l.allLogs.Write([]byte(content)))
}

// Done writes summary.log and flushes all.log
func (l *FileLogger) Done(report *types.Report) error {
	if err := os.WriteFile(l.summaryFile, []byte(formatSummary(report)), 0644); err != nil {
		l.record(fmt.Errorf("failed to write summary: %w", err))
	}
	l.record(l.allLogs.Close())

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *FileLogger) record(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

// RunID returns the run this logger writes for
func (l *FileLogger) RunID() string {
	return l.runID
}

// RunDir returns testrun-<runID> under the base directory
func (l *FileLogger) RunDir() string {
	return l.logDir
}

func (l *FileLogger) PassedDir() string {
	return l.passedDir
}

func (l *FileLogger) FailedDir() string {
	return l.failedDir
}

func (l *FileLogger) SummaryFile() string {
	return l.summaryFile
}

func (l *FileLogger) AllLogsFile() string {
	return l.allLogsFile
}

// TestLogPath returns the log file written for a test
func (l *FileLogger) TestLogPath(name string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	path, ok := l.testLogs[name]
	return path, ok
}

func formatTestLog(run *types.TestRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "┌─────────────────────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(&b, "│ TEST: %-64s │\n", truncateString(run.Name(), 64))
	fmt.Fprintf(&b, "├─────────────────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&b, "│ Outcome:  %-62s │\n", run.Outcome.Kind)
	fmt.Fprintf(&b, "│ Duration: %-62s │\n", run.Duration.Round(time.Millisecond))
	if tags := run.Descriptor.Tags(); len(tags) > 0 {
		fmt.Fprintf(&b, "│ Tags:     %-62s │\n", truncateString(strings.Join(tags, ","), 62))
	}
	if !run.StartTime.IsZero() {
		fmt.Fprintf(&b, "│ Started:  %-62s │\n", run.StartTime.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "└─────────────────────────────────────────────────────────────────────┘\n\n")

	if detail := run.Outcome.Detail(); detail != "" {
		fmt.Fprintf(&b, "DETAIL:\n~~~~~~~\n%s\n\n", detail)
	}
	if len(run.Stages) > 0 {
		fmt.Fprintf(&b, "STAGES:\n~~~~~~~\n")
		for _, s := range run.Stages {
			switch {
			case s.Start:
				fmt.Fprintf(&b, "  start %s\n", s.Stage)
			case s.OK:
				fmt.Fprintf(&b, "  done  %s\n", s.Stage)
			default:
				fmt.Fprintf(&b, "  FAIL  %s\n", s.Stage)
			}
		}
		fmt.Fprintf(&b, "\n")
	}
	writeStream(&b, "STDOUT", run.StdoutString(), run.StdoutTruncated)
	writeStream(&b, "STDERR", run.StderrString(), run.StderrTruncated)
	return b.String()
}

func writeStream(b *strings.Builder, title, content string, truncated bool) {
	if content == "" {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n", title, strings.Repeat("~", len(title)+1))
	if truncated {
		fmt.Fprintf(b, "  (output truncated, showing the tail)\n")
	}
	fmt.Fprintf(b, "%s\n\n", indentText(stripansi.Strip(strings.TrimRight(content, "\n")), "  "))
}

func formatSummary(report *types.Report) string {
	var b strings.Builder
	status := "PASS"
	if !report.Success() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "Run ID:    %s\n", report.RunID)
	fmt.Fprintf(&b, "Status:    %s\n", status)
	fmt.Fprintf(&b, "Summary:   %s\n", report.Summary)
	fmt.Fprintf(&b, "Wall time: %v\n", report.WallClockTime.Round(time.Millisecond))
	fmt.Fprintf(&b, "Test time: %v\n", report.TotalDuration().Round(time.Millisecond))
	if report.Cancelled {
		fmt.Fprintf(&b, "Cancelled: true\n")
	}
	if failures := report.Failures(); len(failures) > 0 {
		fmt.Fprintf(&b, "\nFailures:\n")
		for _, run := range failures {
			fmt.Fprintf(&b, "  %s: %s\n", run.Name(), run.Outcome)
		}
	}
	return b.String()
}

func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// safeFilename converts a test name to a filename
func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}
