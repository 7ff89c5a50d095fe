package runner

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-isolator/metrics"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// TestRunner runs whole suites
type TestRunner interface {
	// Run executes every test of the suite and returns one TestRun per
	// descriptor. Only invalid input is an error: test failures are Outcomes.
	Run(ctx context.Context, suite *types.Suite, opts ...RunOption) (*types.Report, error)
}

// RunOption adjusts a single run
type RunOption func(*runSettings)

type runSettings struct {
	runID    string
	onResult func(*types.TestRun)
}

// WithRunID sets the run ID instead of generating one
func WithRunID(id string) RunOption {
	return func(s *runSettings) {
		s.runID = id
	}
}

// WithOnResult replaces the configured OnResult callback for one run
func WithOnResult(fn func(*types.TestRun)) RunOption {
	return func(s *runSettings) {
		s.onResult = fn
	}
}

// Config holds configuration for creating a new runner
type Config struct {
	Binary          string   // test binary, re-invoked once per test
	Args            []string // extra arguments passed to every child
	DefaultTimeout  time.Duration
	TimeoutOverride time.Duration // when set, replaces every test's timeout
	KillGrace       time.Duration
	Concurrency     int // 0 = auto-determine
	MaxCaptureBytes int
	Log             log.Logger
	Progress        ProgressIndicator
	// OnResult receives every finished run in suite order
	OnResult func(*types.TestRun)
	// Executor replaces the process executor, Binary is then ignored
	Executor Executor
}

type runner struct {
	executor        Executor
	concurrency     int
	defaultTimeout  time.Duration
	timeoutOverride time.Duration
	progress        ProgressIndicator
	onResult        func(*types.TestRun)
	log             log.Logger
	tracer          trace.Tracer
}

var _ TestRunner = (*runner)(nil)

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative")
	}
	if cfg.DefaultTimeout < 0 || cfg.TimeoutOverride < 0 {
		return nil, fmt.Errorf("timeouts cannot be negative")
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultTestTimeout
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}

	executor := cfg.Executor
	if executor == nil {
		pe, err := NewProcessExecutor(ExecutorConfig{
			Binary:          cfg.Binary,
			Args:            cfg.Args,
			KillGrace:       cfg.KillGrace,
			MaxCaptureBytes: cfg.MaxCaptureBytes,
			Log:             cfg.Log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create executor: %w", err)
		}
		executor = pe
	}

	return &runner{
		executor:        executor,
		concurrency:     cfg.Concurrency,
		defaultTimeout:  cfg.DefaultTimeout,
		timeoutOverride: cfg.TimeoutOverride,
		progress:        cfg.Progress,
		onResult:        cfg.OnResult,
		log:             cfg.Log,
		tracer:          otel.Tracer("op-isolator"),
	}, nil
}

// Run executes the suite
func (r *runner) Run(ctx context.Context, suite *types.Suite, opts ...RunOption) (*types.Report, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	if suite == nil {
		return nil, fmt.Errorf("suite cannot be nil")
	}

	settings := runSettings{onResult: r.onResult}
	for _, opt := range opts {
		opt(&settings)
	}
	runID := settings.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	ctx, span := r.tracer.Start(ctx, "suite run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("tests", suite.Len()),
	))
	defer span.End()

	runLog := r.log.New("run_id", runID)
	runLog.Info("Running suite", "tests", suite.Len(), "defaultTimeout", r.defaultTimeout,
		"timeoutOverride", r.timeoutOverride, "maxTimeout", suite.MaxTimeout(r.defaultTimeout, r.timeoutOverride))

	collector := NewResultCollector(runID, suite)
	pool, err := NewWorkerPool(PoolConfig{
		Executor:        &tracedExecutor{inner: r.executor, tracer: r.tracer, runID: runID},
		Concurrency:     r.concurrency,
		DefaultTimeout:  r.defaultTimeout,
		TimeoutOverride: r.timeoutOverride,
		Progress:        r.progress,
		OnResult:        settings.onResult,
		Log:             runLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	cancelled := pool.Run(ctx, suite, collector)
	report := collector.Report(cancelled)

	result := "pass"
	if !report.Success() {
		result = "fail"
		span.SetStatus(codes.Error, report.Summary.String())
	}
	metrics.RecordRun(runID, result, report.Summary, report.WallClockTime)

	runLog.Info("Suite finished",
		"result", result,
		"summary", report.Summary.String(),
		"cancelled", report.Cancelled,
		"wallClock", report.WallClockTime.Truncate(time.Millisecond))
	return report, nil
}

// BuildAndRun builds a suite from a generator and runs it. Construction errors
// such as duplicate names are returned before any test process is spawned.
func BuildAndRun(ctx context.Context, r TestRunner, gen iter.Seq[types.TestDescriptor], opts ...RunOption) (*types.Report, error) {
	suite, err := types.Build(gen)
	if err != nil {
		return nil, fmt.Errorf("failed to build suite: %w", err)
	}
	return r.Run(ctx, suite, opts...)
}

// tracedExecutor wraps each test process in a span and records its metrics
type tracedExecutor struct {
	inner  Executor
	tracer trace.Tracer
	runID  string
}

func (t *tracedExecutor) Execute(ctx context.Context, desc types.TestDescriptor, timeout time.Duration) *types.TestRun {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("test %s", desc.Name()), trace.WithAttributes(
		attribute.String("test", desc.Name()),
		attribute.String("timeout", timeout.String()),
	))
	defer span.End()

	metrics.ProcessStarted()
	run := t.inner.Execute(ctx, desc, timeout)
	metrics.ProcessFinished()

	if run != nil {
		span.SetAttributes(attribute.String("outcome", string(run.Outcome.Kind)))
		if !run.Outcome.IsOK() {
			span.SetStatus(codes.Error, run.Outcome.String())
		}
		metrics.RecordTestOutcome(t.runID, desc.Name(), run.Outcome.Kind, run.Duration)
	}
	return run
}
