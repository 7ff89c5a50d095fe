package runner

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// testWork is one suite position handed to a worker
type testWork struct {
	index int
	desc  types.TestDescriptor
}

// testWorkResult carries a finished run back to the collecting goroutine
type testWorkResult struct {
	index int
	run   *types.TestRun
}

// PoolConfig configures a WorkerPool
type PoolConfig struct {
	Executor        Executor
	Concurrency     int // 0 determines a value from the CPU count
	DefaultTimeout  time.Duration
	TimeoutOverride time.Duration
	Progress        ProgressIndicator
	// OnResult is called from a single goroutine for every finished run, in suite order
	OnResult func(*types.TestRun)
	Log      log.Logger
}

// WorkerPool runs a suite on a bounded number of workers
type WorkerPool struct {
	executor        Executor
	concurrency     int
	defaultTimeout  time.Duration
	timeoutOverride time.Duration
	progress        ProgressIndicator
	onResult        func(*types.TestRun)
	log             log.Logger
}

// NewWorkerPool creates a new worker pool with validation
func NewWorkerPool(cfg PoolConfig) (*WorkerPool, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTestTimeout
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Concurrency > MaxReasonableConcurrency {
		cfg.Log.Warn("Very high concurrency requested", "concurrency", cfg.Concurrency,
			"recommendation", "Consider using lower values to avoid resource exhaustion")
	}
	return &WorkerPool{
		executor:        cfg.Executor,
		concurrency:     cfg.Concurrency,
		defaultTimeout:  cfg.DefaultTimeout,
		timeoutOverride: cfg.TimeoutOverride,
		progress:        cfg.Progress,
		onResult:        cfg.OnResult,
		log:             cfg.Log.New("component", "worker-pool"),
	}, nil
}

// Run executes every test of the suite, recording each into the collector.
// It returns true if the run was cut short by ctx: running tests were killed
// and tests that never started were recorded as skipped.
func (p *WorkerPool) Run(ctx context.Context, suite *types.Suite, collector *ResultCollector) bool {
	total := suite.Len()
	p.progress.StartRun(total)
	defer p.progress.CompleteRun()

	if total == 0 {
		p.log.Debug("No tests to execute")
		return false
	}

	workers := determineConcurrency(p.concurrency, total)
	p.log.Info("Starting test execution", "totalTests", total, "concurrency", workers)

	workChan := make(chan testWork)
	resultChan := make(chan testWorkResult, workers)

	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		wg.Add(1)
		go p.worker(ctx, id, &wg, collector, workChan, resultChan)
	}

	// Dispatch in suite order; stop handing out work once cancelled
	go func() {
		defer close(workChan)
		for i, desc := range suite.All() {
			if ctx.Err() != nil {
				p.log.Debug("Run cancelled, not dispatching remaining tests", "remaining", total-i)
				return
			}
			select {
			case workChan <- testWork{index: i, desc: desc}:
			case <-ctx.Done():
				p.log.Debug("Run cancelled, not dispatching remaining tests", "remaining", total-i)
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	interrupted := 0
	next := 0
	for res := range resultChan {
		if err := collector.Record(res.index, res.run); err != nil {
			p.log.Error("Failed to record test result", "test", res.run.Name(), "error", err)
			continue
		}
		if isCancellationSkip(res.run) {
			interrupted++
		}
		p.progress.CompleteTest(res.run.Name(), res.run.Outcome.Kind)
		next = p.release(collector, next, total)
	}

	notRun := collector.FillPending(NotRunReason)
	p.release(collector, next, total)

	cancelled := notRun > 0 || interrupted > 0
	if cancelled {
		p.log.Warn("Run cancelled", "interrupted", interrupted, "notRun", notRun)
	}
	return cancelled
}

// release hands consecutive finished runs to OnResult so consumers see suite order
func (p *WorkerPool) release(collector *ResultCollector, next, total int) int {
	for next < total {
		run, ok := collector.Get(next)
		if !ok {
			break
		}
		if p.onResult != nil {
			p.onResult(run)
		}
		next++
	}
	return next
}

func (p *WorkerPool) worker(ctx context.Context, id int, wg *sync.WaitGroup, collector *ResultCollector, workChan <-chan testWork, resultChan chan<- testWorkResult) {
	defer wg.Done()

	for work := range workChan {
		desc := work.desc
		if desc.Skipped() {
			resultChan <- testWorkResult{
				index: work.index,
				run:   &types.TestRun{Descriptor: desc, StartTime: time.Now(), Outcome: types.Skipped(desc.SkipReason())},
			}
			continue
		}
		if ctx.Err() != nil {
			// Leave the slot pending: it is filled as not run once the pool drains
			continue
		}
		if err := collector.MarkRunning(work.index); err != nil {
			p.log.Error("Failed to start test", "worker", id, "test", desc.Name(), "error", err)
			continue
		}

		timeout := desc.EffectiveTimeout(p.defaultTimeout, p.timeoutOverride)
		p.log.Debug("Worker processing test", "worker", id, "test", desc.Name(), "timeout", timeout)
		p.progress.StartTest(desc.Name(), timeout)

		run := p.executor.Execute(ctx, desc, timeout)
		if run == nil {
			run = &types.TestRun{Descriptor: desc, Outcome: types.SpawnError(fmt.Errorf("executor returned no result"))}
		}
		resultChan <- testWorkResult{index: work.index, run: run}
	}
}

func isCancellationSkip(run *types.TestRun) bool {
	if run.Outcome.Kind != types.OutcomeSkipped || run.Descriptor.Skipped() {
		return false
	}
	return run.Outcome.Message == InterruptedReason || run.Outcome.Message == NotRunReason
}

// determineConcurrency resolves the number of workers. A positive request is
// honoured up to the number of tests; zero scales with the CPU count.
func determineConcurrency(requested, numTests int) int {
	if numTests <= 0 {
		return 0
	}
	if requested > 0 {
		return min(requested, numTests)
	}

	numCPU := runtime.NumCPU()
	var auto int
	switch {
	case numCPU <= 2:
		auto = numCPU
	case numCPU <= 4:
		auto = int(math.Round(float64(numCPU) * 1.25))
	default:
		auto = int(math.Round(float64(numCPU) * 1.5))
	}
	auto = min(auto, MaxReasonableConcurrency, numTests)
	return max(auto, 1)
}
