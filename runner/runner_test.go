//go:build unix

package runner

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

func newHelperRunner(t *testing.T, concurrency int, mutate ...func(*Config)) TestRunner {
	t.Helper()
	cfg := Config{
		Binary:         os.Args[0],
		DefaultTimeout: 10 * time.Second,
		KillGrace:      500 * time.Millisecond,
		Concurrency:    concurrency,
		Log:            log.NewLogger(log.DiscardHandler()),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := NewTestRunner(cfg)
	require.NoError(t, err)
	return r
}

func mixedSuite(t *testing.T) *types.Suite {
	t.Helper()
	suite, err := types.FromDescriptors(
		types.NewDescriptor("pass/first"),
		types.NewDescriptor("crash/in the middle"),
		types.NewDescriptor("pass/after crash"),
		types.NewDescriptor("fail/assertion"),
		types.NewDescriptor("hang/forever", types.WithTimeout(300*time.Millisecond)),
		types.NewDescriptor("panic/boom"),
		types.NewDescriptor("background/a"),
		types.NewDescriptor("background/b"),
		types.NewDescriptor("pass/last"),
	)
	require.NoError(t, err)
	return suite
}

func TestNewTestRunnerValidation(t *testing.T) {
	nop := log.NewLogger(log.DiscardHandler())
	_, err := NewTestRunner(Config{Log: nop})
	assert.Error(t, err, "a binary is required without a custom executor")

	_, err = NewTestRunner(Config{Binary: "x", Concurrency: -1, Log: nop})
	assert.Error(t, err)

	_, err = NewTestRunner(Config{Binary: "x", DefaultTimeout: -time.Second, Log: nop})
	assert.Error(t, err)

	r := newHelperRunner(t, 1)
	_, err = r.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRunnerCrashIsolation(t *testing.T) {
	suite := mixedSuite(t)
	report, err := newHelperRunner(t, 4).Run(context.Background(), suite)
	require.NoError(t, err)

	require.Len(t, report.Runs, suite.Len())
	expected := map[string]types.OutcomeKind{
		"pass/first":          types.OutcomePassed,
		"crash/in the middle": types.OutcomeCrashed,
		"pass/after crash":    types.OutcomePassed,
		"fail/assertion":      types.OutcomeFailed,
		"hang/forever":        types.OutcomeTimedOut,
		"panic/boom":          types.OutcomePanicked,
		"background/a":        types.OutcomePassed,
		"background/b":        types.OutcomePassed,
		"pass/last":           types.OutcomePassed,
	}
	for i, run := range report.Runs {
		assert.Equal(t, suite.At(i).Name(), run.Name())
		assert.Equal(t, expected[run.Name()], run.Outcome.Kind, "%s: %s", run.Name(), run.Outcome)
	}
	assert.False(t, report.Success())
	assert.NotEmpty(t, report.RunID)
}

func TestRunnerOutputIsPerTest(t *testing.T) {
	report, err := newHelperRunner(t, 4).Run(context.Background(), mixedSuite(t))
	require.NoError(t, err)

	a, ok := report.Run("background/a")
	require.True(t, ok)
	b, ok := report.Run("background/b")
	require.True(t, ok)

	for i := 0; i < 4; i++ {
		assert.Contains(t, a.StdoutString(), fmt.Sprintf("marker background/a goroutine %d", i))
		assert.Contains(t, b.StdoutString(), fmt.Sprintf("marker background/b goroutine %d", i))
	}
	assert.NotContains(t, a.StdoutString(), "background/b")
	assert.NotContains(t, b.StdoutString(), "background/a")
}

func TestRunnerConcurrencyDoesNotChangeOutcomes(t *testing.T) {
	suite := mixedSuite(t)

	serial, err := newHelperRunner(t, 1).Run(context.Background(), suite)
	require.NoError(t, err)
	parallel, err := newHelperRunner(t, 4).Run(context.Background(), suite)
	require.NoError(t, err)

	require.Len(t, parallel.Runs, len(serial.Runs))
	for i := range serial.Runs {
		assert.True(t, serial.Runs[i].Outcome.Equivalent(parallel.Runs[i].Outcome),
			"%s: serial %s, parallel %s", serial.Runs[i].Name(), serial.Runs[i].Outcome, parallel.Runs[i].Outcome)
	}
	assert.Equal(t, serial.Summary, parallel.Summary)
}

func TestRunnerTimeoutOverride(t *testing.T) {
	suite, err := types.FromDescriptors(types.NewDescriptor("hang/overridden", types.WithTimeout(time.Minute)))
	require.NoError(t, err)

	start := time.Now()
	report, err := newHelperRunner(t, 1, func(cfg *Config) {
		cfg.TimeoutOverride = 200 * time.Millisecond
	}).Run(context.Background(), suite)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeTimedOut, report.Runs[0].Outcome.Kind)
	assert.GreaterOrEqual(t, report.Runs[0].Outcome.Elapsed, 200*time.Millisecond)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunnerLogsLongestTimeout(t *testing.T) {
	suite, err := types.FromDescriptors(
		types.NewDescriptor("pass/slow budget", types.WithTimeout(time.Minute)),
		types.NewDescriptor("pass/default budget"),
	)
	require.NoError(t, err)

	logger, logs := testlog.CaptureLogger(t, log.LevelInfo)
	_, err = newHelperRunner(t, 1, func(cfg *Config) {
		cfg.Log = logger
	}).Run(context.Background(), suite)
	require.NoError(t, err)

	rec := logs.FindLog(testlog.NewMessageFilter("Running suite"))
	require.NotNil(t, rec)
	assert.Equal(t, time.Minute, rec.AttrValue("maxTimeout"))
}

func TestRunnerEmptySuite(t *testing.T) {
	suite, err := types.Build(nil)
	require.NoError(t, err)

	report, err := newHelperRunner(t, 0).Run(context.Background(), suite)
	require.NoError(t, err)
	assert.Empty(t, report.Runs)
	assert.True(t, report.Success())
}

func TestRunnerSpawnFailureIsPerTest(t *testing.T) {
	suite := mustSuite(t, "pass/a", "pass/b")
	report, err := newHelperRunner(t, 2, func(cfg *Config) {
		cfg.Binary = "/nonexistent/op-isolator"
	}).Run(context.Background(), suite)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.SpawnErrors)
}

func TestRunnerCancellation(t *testing.T) {
	suite := mustSuite(t, "hang/1", "hang/2", "pass/3", "pass/4")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	report, err := newHelperRunner(t, 2).Run(ctx, suite)
	require.NoError(t, err)
	require.Len(t, report.Runs, 4)
	assert.True(t, report.Cancelled)
	assert.False(t, report.Success())
	assert.Equal(t, types.Skipped(InterruptedReason), report.Runs[0].Outcome)
	assert.Equal(t, types.Skipped(InterruptedReason), report.Runs[1].Outcome)
	assert.Equal(t, types.OutcomeSkipped, report.Runs[2].Outcome.Kind)
	assert.Equal(t, types.OutcomeSkipped, report.Runs[3].Outcome.Kind)
}

func TestRunnerStreamsInSuiteOrder(t *testing.T) {
	suite := mixedSuite(t)
	var streamed []string
	_, err := newHelperRunner(t, 4, func(cfg *Config) {
		cfg.OnResult = func(run *types.TestRun) { streamed = append(streamed, run.Name()) }
	}).Run(context.Background(), suite)
	require.NoError(t, err)
	assert.Equal(t, suite.Names(), streamed)
}

func TestDuplicateNamesSpawnNothing(t *testing.T) {
	executor := &fakeExecutor{}
	gen := types.Sweep("dup", []int{1, 2, 1}, func(i int) string { return fmt.Sprint(i) })

	report, err := BuildAndRun(context.Background(), newHelperRunner(t, 1, func(cfg *Config) {
		cfg.Executor = executor
	}), gen)
	require.Error(t, err)
	assert.True(t, types.IsDuplicateNameError(err))
	assert.Nil(t, report)
	assert.Empty(t, executor.Calls())
}

func TestRunOptions(t *testing.T) {
	suite := numberedSuite(t, 3)
	var configured, perRun []string
	r := newHelperRunner(t, 2, func(cfg *Config) {
		cfg.Executor = &fakeExecutor{}
		cfg.OnResult = func(run *types.TestRun) { configured = append(configured, run.Name()) }
	})

	report, err := r.Run(context.Background(), suite,
		WithRunID("fixed-run"),
		WithOnResult(func(run *types.TestRun) { perRun = append(perRun, run.Name()) }))
	require.NoError(t, err)
	assert.Equal(t, "fixed-run", report.RunID)
	assert.Equal(t, suite.Names(), perRun)
	assert.Empty(t, configured)

	report, err = r.Run(context.Background(), suite)
	require.NoError(t, err)
	assert.NotEqual(t, "fixed-run", report.RunID)
	assert.Equal(t, suite.Names(), configured)
}
