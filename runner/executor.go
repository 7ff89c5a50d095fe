package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-isolator/protocol"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

var _ Executor = (*ProcessExecutor)(nil)

// Executor runs one test to completion. Implementations never return nil and
// report every failure, including failure to start, through the TestRun's Outcome.
type Executor interface {
	Execute(ctx context.Context, desc types.TestDescriptor, timeout time.Duration) *types.TestRun
}

// ExecutorConfig configures a ProcessExecutor
type ExecutorConfig struct {
	Binary          string
	Args            []string
	KillGrace       time.Duration   // how long to wait on output pipes once the child is gone
	MaxCaptureBytes int             // per stream, 0 keeps everything
	Environ         func() []string // base environment for children, defaults to os.Environ
	Kill            KillFunc        // defaults to killing the process group
	Log             log.Logger
}

// ProcessExecutor runs each test in a fresh child process of the test binary
type ProcessExecutor struct {
	binary          string
	args            []string
	killGrace       time.Duration
	maxCaptureBytes int
	environ         func() []string
	kill            KillFunc
	log             log.Logger
}

// NewProcessExecutor creates a new process executor
func NewProcessExecutor(cfg ExecutorConfig) (*ProcessExecutor, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("binary cannot be empty")
	}
	if cfg.MaxCaptureBytes < 0 {
		return nil, fmt.Errorf("max capture bytes cannot be negative")
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ
	}
	if cfg.Kill == nil {
		cfg.Kill = killProcessGroup
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return &ProcessExecutor{
		binary:          cfg.Binary,
		args:            cfg.Args,
		killGrace:       cfg.KillGrace,
		maxCaptureBytes: cfg.MaxCaptureBytes,
		environ:         cfg.Environ,
		kill:            cfg.Kill,
		log:             cfg.Log.New("component", "executor"),
	}, nil
}

// Execute spawns the binary for a single test and waits for it to terminate
func (e *ProcessExecutor) Execute(ctx context.Context, desc types.TestDescriptor, timeout time.Duration) *types.TestRun {
	run := &types.TestRun{Descriptor: desc, StartTime: time.Now()}

	if desc.Skipped() {
		run.Outcome = types.Skipped(desc.SkipReason())
		return run
	}
	if ctx.Err() != nil {
		run.Outcome = types.Skipped(NotRunReason)
		return run
	}

	resultR, resultW, err := os.Pipe()
	if err != nil {
		run.Outcome = types.SpawnError(fmt.Errorf("failed to create result pipe: %w", err))
		return run
	}
	defer resultR.Close()

	stdout := newCaptureBuffer(e.maxCaptureBytes)
	stderr := newCaptureBuffer(e.maxCaptureBytes)

	cmd := exec.Command(e.binary, e.args...)
	cmd.Env = e.childEnv(ctx, desc)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.ExtraFiles = []*os.File{resultW}
	cmd.WaitDelay = e.killGrace
	configureProcess(cmd)

	e.log.Debug("Starting test process", "test", desc.Name(), "command", cmd.String(), "timeout", timeout)

	if err := cmd.Start(); err != nil {
		_ = resultW.Close()
		run.Outcome = types.SpawnError(fmt.Errorf("failed to start %s: %w", e.binary, err))
		run.Duration = time.Since(run.StartTime)
		return run
	}
	// The child holds its own copy of the write end
	_ = resultW.Close()

	records := make(chan []protocol.Record, 1)
	go func() {
		records <- protocol.ReadRecords(resultR)
	}()

	supervisor := NewSupervisor(e.kill)
	supervisor.Watch(ctx, cmd.Process.Pid, timeout)

	// While the exited leader is unreaped its pid, and so its group id, cannot
	// be reused, which makes it safe to kill whatever it left behind.
	var waitErr error
	held := waitExited(cmd.Process.Pid)
	if !held {
		waitErr = cmd.Wait()
	}
	timedOut, cancelled, elapsed := supervisor.Stop()
	run.Duration = time.Since(run.StartTime)

	// Without a held leader the group id could in principle have been reused
	// by the time it is killed. Only platforms lacking waitid take that path.
	if err := e.kill(cmd.Process.Pid); err != nil {
		e.log.Debug("Failed to kill leftover processes", "test", desc.Name(), "error", err)
	}
	if held {
		waitErr = cmd.Wait()
	}
	if err := supervisor.KillErr(); err != nil {
		e.log.Warn("Failed to kill test process", "test", desc.Name(), "error", err)
	}

	// A grandchild may still hold the side channel open
	_ = resultR.SetReadDeadline(time.Now().Add(e.killGrace))
	recs := <-records

	run.Outcome = classifyExit(waitErr, timedOut, cancelled, elapsed, recs)
	run.Stages = stageEvents(recs)
	run.Stdout = stdout.Bytes()
	run.Stderr = stderr.Bytes()
	run.StdoutTruncated = stdout.Truncated()
	run.StderrTruncated = stderr.Truncated()
	run.StdoutBytes = stdout.TotalBytes()
	run.StderrBytes = stderr.TotalBytes()

	e.log.Debug("Test process finished", "test", desc.Name(), "outcome", run.Outcome, "duration", run.Duration)
	return run
}

func (e *ProcessExecutor) childEnv(ctx context.Context, desc types.TestDescriptor) []string {
	env := telemetry.InstrumentEnvironment(ctx, e.environ())
	return append(env,
		fmt.Sprintf("%s=%s", protocol.EnvTest, desc.Name()),
		fmt.Sprintf("%s=%d", protocol.EnvResultFD, protocol.ResultFD),
	)
}

// classifyExit maps how a child ended onto an Outcome. Precedence matters: a
// child killed by the supervisor also reports a signal, and a child that
// wrote a failure record still exits non-zero.
func classifyExit(waitErr error, timedOut, cancelled bool, elapsed time.Duration, records []protocol.Record) types.Outcome {
	if timedOut {
		return types.TimedOut(elapsed)
	}
	if cancelled {
		return types.Skipped(InterruptedReason)
	}
	if waitErr == nil || errors.Is(waitErr, exec.ErrWaitDelay) {
		return types.Passed()
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return types.Failed(fmt.Sprintf("failed waiting for test process: %v", waitErr))
	}
	if sig, ok := exitSignal(exitErr); ok {
		return types.CrashedWithSignal(sig)
	}

	code := exitErr.ExitCode()
	if verdict, ok := protocol.LastVerdict(records); ok {
		if verdict.Kind == protocol.KindPanicked {
			return types.Panicked(verdict.Message)
		}
		return types.FailedWithCode(verdict.Message, code)
	}
	switch code {
	case protocol.ExitFailed:
		return types.FailedWithCode("exit status 1", code)
	case protocol.ExitPanicked:
		return types.Panicked("exit status 101")
	default:
		return types.CrashedWithCode(code)
	}
}

func stageEvents(records []protocol.Record) []types.StageEvent {
	var stages []types.StageEvent
	for _, rec := range records {
		switch rec.Kind {
		case protocol.KindStageStart:
			stages = append(stages, types.StageEvent{Stage: rec.Stage, Start: true, Time: rec.Time})
		case protocol.KindStageEnd:
			stages = append(stages, types.StageEvent{Stage: rec.Stage, OK: rec.OK, Time: rec.Time})
		}
	}
	return stages
}
