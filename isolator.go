// Package isolator runs test suites with every test in its own process of a
// test binary, and wires the engine into a CLI lifecycle with reporting, per-test
// logs, stability analysis and continuous mode.
package isolator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-isolator/logging"
	"github.com/ethereum-optimism/infra/op-isolator/metrics"
	"github.com/ethereum-optimism/infra/op-isolator/registry"
	"github.com/ethereum-optimism/infra/op-isolator/reporting"
	"github.com/ethereum-optimism/infra/op-isolator/runner"
	"github.com/ethereum-optimism/infra/op-isolator/service"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// Isolator implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*Isolator)(nil)

// Isolator runs the selected suite once or on a schedule
type Isolator struct {
	config    *Config
	version   string
	registry  *registry.Registry
	runner    runner.TestRunner
	scheduler RunScheduler
	service   *service.Service
	out       io.Writer

	mu         sync.Mutex
	lastReport *types.Report
	runs       int
	started    atomic.Bool

	shutdownCallback func(error)
}

// New creates the registry and runner. out receives reports, os.Stdout when nil.
func New(ctx context.Context, config *Config, version string, out io.Writer, shutdownCallback func(error)) (*Isolator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("config.Log is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}

	config.Log.Debug("Creating isolator", "config", config.Snapshot())

	reg, err := registry.NewRegistry(ctx, registry.Config{
		Log:          config.Log.New("component", "registry"),
		Binary:       config.Binary,
		Args:         config.Args,
		ManifestFile: config.Manifest,
		Suite:        config.Suite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	defaultTimeout := config.DefaultTimeout
	if mt := reg.DefaultTimeout(); mt > 0 {
		defaultTimeout = mt
	}

	var progress runner.ProgressIndicator
	if config.ShowProgress {
		progress = runner.NewConsoleProgressIndicator(config.Log.New("component", "progress"), config.ProgressInterval)
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Binary:          config.Binary,
		Args:            config.Args,
		DefaultTimeout:  defaultTimeout,
		TimeoutOverride: config.TimeoutOverride,
		KillGrace:       config.KillGrace,
		Concurrency:     config.Concurrency,
		MaxCaptureBytes: config.MaxCaptureBytes,
		Log:             config.Log.New("component", "runner"),
		Progress:        progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	i := &Isolator{
		config:           config,
		version:          version,
		registry:         reg,
		runner:           testRunner,
		scheduler:        NewIntervalScheduler(config.RunInterval, config.RunOnce, config.Log.New("component", "scheduler")),
		out:              out,
		shutdownCallback: shutdownCallback,
	}
	if !config.RunOnce || config.MetricsConfig.Enabled {
		var metricsAddr string
		if config.MetricsConfig.Enabled {
			metricsAddr = net.JoinHostPort(config.MetricsConfig.ListenAddr, strconv.Itoa(config.MetricsConfig.ListenPort))
		}
		i.service = service.New(service.Config{
			Log:         config.Log.New("component", "service"),
			MetricsAddr: metricsAddr,
		})
	}
	i.scheduler.RegisterCallback(i.runTests)
	return i, nil
}

// Start runs the suite. In run-once mode it returns a TestFailureError when the
// run did not succeed and asks the app to shut down otherwise.
// Start implements the cliapp.Lifecycle interface.
func (i *Isolator) Start(ctx context.Context) error {
	i.started.Store(true)
	if i.service != nil {
		i.service.Start(ctx)
	}

	if err := i.scheduler.Start(ctx); err != nil {
		return err
	}
	if !i.config.RunOnce {
		return nil
	}

	report := i.LastReport()
	if report != nil && !report.Success() {
		i.config.Log.Warn("Run completed with failures", "summary", report.Summary.String(), "cancelled", report.Cancelled)
		msg := report.Summary.String()
		if report.Cancelled {
			msg = "run cancelled: " + msg
		}
		return NewTestFailureError(msg)
	}
	if i.shutdownCallback != nil {
		go i.shutdownCallback(nil)
	}
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (i *Isolator) Stop(ctx context.Context) error {
	if !i.started.CompareAndSwap(true, false) {
		return nil
	}
	i.config.Log.Info("Stopping op-isolator")
	if err := i.scheduler.Stop(); err != nil {
		return err
	}
	err := i.scheduler.WaitForShutdown(ctx)
	if i.service != nil {
		i.service.Shutdown()
	}
	return err
}

// Stopped implements the cliapp.Lifecycle interface.
func (i *Isolator) Stopped() bool {
	return !i.started.Load()
}

// LastReport returns the report of the most recent completed run
func (i *Isolator) LastReport() *types.Report {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastReport
}

// runTests performs one scheduled run. Only failures of the isolator itself
// are returned: test failures are part of the report.
func (i *Isolator) runTests(ctx context.Context) error {
	i.mu.Lock()
	i.runs++
	first := i.runs == 1
	i.mu.Unlock()

	if !first {
		if err := i.registry.Reload(ctx); err != nil {
			metrics.RecordErrorDetails("reload", err)
			return NewRuntimeError(fmt.Errorf("failed to reload tests: %w", err))
		}
	}

	suite := i.registry.Select(i.config.Filter)
	i.config.Log.Info("Running tests", "selected", suite.Len(), "total", i.registry.Suite().Len())

	var report *types.Report
	var err error
	if i.config.Repeat > 1 {
		report, err = i.runStability(ctx, suite)
	} else {
		report, err = i.runReported(ctx, suite)
	}
	if err != nil {
		metrics.RecordErrorDetails("run", err)
		return NewRuntimeError(err)
	}

	i.mu.Lock()
	i.lastReport = report
	i.mu.Unlock()
	if i.service != nil {
		i.service.Healthz.SetStatus(report.Success(), report.Summary.String())
	}

	i.config.Log.Info("Test run completed", "run_id", report.RunID, "success", report.Success(), "summary", report.Summary.String())
	return nil
}

func (i *Isolator) runReported(ctx context.Context, suite *types.Suite) (*types.Report, error) {
	runID := uuid.New().String()

	reporter, err := reporting.New(i.config.Format, reporting.Options{
		Out:   i.out,
		Color: i.config.Color,
		Title: "op-isolator " + i.version,
	})
	if err != nil {
		return nil, err
	}
	var fileLogger *logging.FileLogger
	if i.config.LogDir != "" {
		fileLogger, err = logging.NewFileLogger(i.config.LogDir, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		reporter = reporting.Multi(reporter, fileLogger)
	}

	reporter.Init(suite)
	report, err := i.runner.Run(ctx, suite, runner.WithRunID(runID), runner.WithOnResult(reporter.Report))
	if err != nil {
		return nil, err
	}
	if err := reporter.Done(report); err != nil {
		i.config.Log.Error("Failed to write report", "error", err)
	}
	if fileLogger != nil {
		i.config.Log.Info("Test logs written", "dir", fileLogger.RunDir())
	}
	return report, nil
}

// runStability runs the suite Repeat times. The returned report is that of a
// single synthetic run: a test passes only if it passed on every iteration.
func (i *Isolator) runStability(ctx context.Context, suite *types.Suite) (*types.Report, error) {
	sr, err := runner.NewStabilityRunner(i.runner, i.config.Repeat, i.config.Log.New("component", "stability"))
	if err != nil {
		return nil, err
	}
	stability, err := sr.Run(ctx, suite)
	if err != nil {
		return nil, err
	}

	color := i.config.Color.Enabled(i.out)
	if _, err := io.WriteString(i.out, reporting.RenderStability(stability, color)); err != nil {
		i.config.Log.Error("Failed to write stability report", "error", err)
	}
	if i.config.LogDir != "" {
		path, err := runner.SaveStabilityReport(stability, i.config.LogDir)
		if err != nil {
			return nil, err
		}
		i.config.Log.Info("Stability report written", "path", path)
	}
	return stabilityAsReport(suite, stability), nil
}

func stabilityAsReport(suite *types.Suite, stability *runner.StabilityReport) *types.Report {
	runs := make([]*types.TestRun, 0, suite.Len())
	for idx, d := range suite.All() {
		t := stability.Tests[idx]
		var outcome types.Outcome
		switch {
		case t.TotalRuns == 0:
			outcome = types.Skipped(runner.NotRunReason)
		case t.Failures > 0:
			outcome = stabilityFailure(t)
		case t.Passes == 0:
			outcome = types.Skipped(d.SkipReason())
		default:
			outcome = types.Passed()
		}
		runs = append(runs, &types.TestRun{Descriptor: d, Outcome: outcome, Duration: t.AvgDuration})
	}
	cancelled := stability.Completed < stability.Iterations
	return types.NewReport(uuid.New().String(), runs, stability.GeneratedAt, 0, cancelled)
}

// stabilityFailure reports a test that did not pass every iteration with the
// kind it failed with most often, keeping that kind's last payload.
func stabilityFailure(t runner.StabilityResult) types.Outcome {
	kind, _ := t.DominantFailure()
	outcome, ok := t.LastFailures[kind]
	if !ok {
		outcome = types.Outcome{Kind: kind}
	}
	summary := fmt.Sprintf("%s: passed %d of %d runs", t.Recommendation, t.Passes, t.TotalRuns)
	if breakdown := t.FailureBreakdown(); breakdown != "" {
		summary += " (" + breakdown + ")"
	}
	if outcome.Message != "" {
		summary += ": " + outcome.Message
	}
	outcome.Message = summary
	return outcome
}
