package runner

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// ProgressIndicator is told about every test process the pool starts and
// finishes. Calls may come from several workers at once.
type ProgressIndicator interface {
	StartRun(totalTests int)
	StartTest(testName string, timeout time.Duration)
	CompleteTest(testName string, kind types.OutcomeKind)
	CompleteRun()
}

type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator returns an indicator that ignores every event
func NewNoOpProgressIndicator() ProgressIndicator {
	return noOpProgressIndicator{}
}

func (noOpProgressIndicator) StartRun(int)                           {}
func (noOpProgressIndicator) StartTest(string, time.Duration)        {}
func (noOpProgressIndicator) CompleteTest(string, types.OutcomeKind) {}
func (noOpProgressIndicator) CompleteRun()                           {}

// inFlight is a test process that has been spawned and not yet reaped
type inFlight struct {
	name     string
	started  time.Time
	deadline time.Time
}

// consoleProgressIndicator logs a progress line every interval while a run is
// in progress. The line names the processes closest to being killed.
type consoleProgressIndicator struct {
	logger   log.Logger
	interval time.Duration

	mu       sync.Mutex
	stopCh   chan struct{}
	started  time.Time
	total    int
	summary  types.Summary
	inFlight map[string]inFlight
}

// NewConsoleProgressIndicator logs progress through logger every updateInterval
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval <= 0 {
		updateInterval = 30 * time.Second
	}
	return &consoleProgressIndicator{
		logger:   logger,
		interval: updateInterval,
		inFlight: make(map[string]inFlight),
	}
}

func (c *consoleProgressIndicator) StartRun(totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total = totalTests
	c.summary = types.Summary{}
	c.started = time.Now()
	c.inFlight = make(map[string]inFlight)
	if c.stopCh == nil {
		c.stopCh = make(chan struct{})
		go c.tick(c.stopCh)
	}
	c.logger.Info("Starting run", "totalTests", totalTests)
}

func (c *consoleProgressIndicator) StartTest(testName string, timeout time.Duration) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[testName] = inFlight{name: testName, started: now, deadline: now.Add(timeout)}
	c.logger.Debug("Test process started", "test", testName, "timeout", timeout, "inFlight", len(c.inFlight))
}

func (c *consoleProgressIndicator) CompleteTest(testName string, kind types.OutcomeKind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, testName)
	c.summary.Add(kind)
	c.logger.Debug("Test completed", "test", testName, "outcome", kind, "completed", c.summary.Total, "total", c.total)
}

func (c *consoleProgressIndicator) CompleteRun() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.logger.Info("Completed run",
		"summary", c.summary.String(),
		"duration", time.Since(c.started).Truncate(time.Millisecond))
	c.inFlight = make(map[string]inFlight)
}

func (c *consoleProgressIndicator) tick(stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.report(time.Now())
		case <-stop:
			return
		}
	}
}

func (c *consoleProgressIndicator) report(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	percent := 0.0
	if c.total > 0 {
		percent = float64(c.summary.Total) * 100 / float64(c.total)
	}
	c.logger.Info("Progress update",
		"completed", c.summary.Total,
		"total", c.total,
		"notOK", c.summary.NotOK(),
		"percent", fmt.Sprintf("%.1f%%", percent),
		"inFlight", len(c.inFlight),
		"nearestDeadline", describeInFlight(c.inFlight, now, 3),
	)
}

// describeInFlight lists up to maxShow processes, nearest kill deadline first
func describeInFlight(procs map[string]inFlight, now time.Time, maxShow int) string {
	if len(procs) == 0 {
		return ""
	}
	sorted := make([]inFlight, 0, len(procs))
	for _, p := range procs {
		sorted = append(sorted, p)
	}
	slices.SortFunc(sorted, func(a, b inFlight) int {
		return cmp.Or(a.deadline.Compare(b.deadline), cmp.Compare(a.name, b.name))
	})

	parts := make([]string, 0, maxShow+1)
	for _, p := range sorted[:min(maxShow, len(sorted))] {
		parts = append(parts, fmt.Sprintf("%s (running %v, killed in %v)",
			p.name, now.Sub(p.started).Truncate(time.Second), p.deadline.Sub(now).Truncate(time.Second)))
	}
	if extra := len(sorted) - maxShow; extra > 0 {
		parts = append(parts, fmt.Sprintf("+%d more", extra))
	}
	return strings.Join(parts, ", ")
}
