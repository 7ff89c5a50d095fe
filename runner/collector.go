package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

type slotState int

const (
	statePending slotState = iota
	stateRunning
	stateDone
)

func (s slotState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateRunning:
		return "running"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// ResultCollector holds one slot per suite position. Each slot moves from
// pending to running to done, and accepts exactly one TestRun.
type ResultCollector struct {
	runID string
	suite *types.Suite
	start time.Time

	mu     sync.Mutex
	states []slotState
	runs   []*types.TestRun
}

// NewResultCollector creates a collector for the given suite
func NewResultCollector(runID string, suite *types.Suite) *ResultCollector {
	n := suite.Len()
	return &ResultCollector{
		runID:  runID,
		suite:  suite,
		start:  time.Now(),
		states: make([]slotState, n),
		runs:   make([]*types.TestRun, n),
	}
}

// MarkRunning moves a pending slot to running
func (c *ResultCollector) MarkRunning(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkIndex(i); err != nil {
		return err
	}
	if c.states[i] != statePending {
		return fmt.Errorf("test %q cannot start: it is %s", c.suite.At(i).Name(), c.states[i])
	}
	c.states[i] = stateRunning
	return nil
}

// Record stores the terminal run for a slot. Recording twice is an error.
func (c *ResultCollector) Record(i int, run *types.TestRun) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkIndex(i); err != nil {
		return err
	}
	name := c.suite.At(i).Name()
	if run.Name() != name {
		return fmt.Errorf("run for %q recorded in slot of %q", run.Name(), name)
	}
	if c.states[i] == stateDone {
		return fmt.Errorf("test %q already has a result", name)
	}
	c.states[i] = stateDone
	c.runs[i] = run
	return nil
}

// Get returns the run recorded for a slot, if any
func (c *ResultCollector) Get(i int) (*types.TestRun, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.checkIndex(i) != nil || c.states[i] != stateDone {
		return nil, false
	}
	return c.runs[i], true
}

// FillPending records every slot that never started as skipped and returns how many there were
func (c *ResultCollector) FillPending(reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	filled := 0
	for i, state := range c.states {
		if state != statePending {
			continue
		}
		c.states[i] = stateDone
		c.runs[i] = &types.TestRun{
			Descriptor: c.suite.At(i),
			Outcome:    types.Skipped(reason),
		}
		filled++
	}
	return filled
}

// Report builds the ordered report. Slots still without a result are reported
// as never run, so the report always has one run per suite position.
func (c *ResultCollector) Report(cancelled bool) *types.Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	runs := make([]*types.TestRun, len(c.runs))
	for i, run := range c.runs {
		if run == nil {
			run = &types.TestRun{Descriptor: c.suite.At(i), Outcome: types.Skipped(NotRunReason)}
			cancelled = true
		}
		runs[i] = run
	}
	return types.NewReport(c.runID, runs, c.start, time.Since(c.start), cancelled)
}

func (c *ResultCollector) checkIndex(i int) error {
	if i < 0 || i >= len(c.states) {
		return fmt.Errorf("index %d out of range for suite of %d tests", i, len(c.states))
	}
	return nil
}
