package isolator

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-isolator/flags"
	"github.com/ethereum-optimism/infra/op-isolator/reporting"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// Config holds the application configuration
type Config struct {
	Binary           string        // Test binary, re-invoked once per test
	Args             []string      // Extra arguments passed to every test process
	Manifest         string        // Optional YAML manifest with per-test overrides
	DefaultTimeout   time.Duration // Timeout for tests that declare none
	TimeoutOverride  time.Duration // When set, replaces every test's timeout
	KillGrace        time.Duration // Pipe drain grace after a test process exits
	Serial           bool          // Whether to run tests serially instead of in parallel
	Concurrency      int           // Number of concurrent test processes (0 = auto-determine)
	Filter           types.Filter
	Format           reporting.Format
	Color            reporting.ColorMode
	LogDir           string // Directory to store per-test logs, empty disables them
	MaxCaptureBytes  int
	ShowProgress     bool          // Whether to show periodic progress updates during test execution
	ProgressInterval time.Duration // Interval between progress updates when ShowProgress is 'true'
	RunInterval      time.Duration // Interval between runs
	RunOnce          bool          // Exit after one run
	Repeat           int           // Number of times each run executes the suite, for stability analysis
	MetricsConfig    opmetrics.CLIConfig
	Log              log.Logger

	// Suite, when set, is run instead of discovering tests from Binary
	Suite *types.Suite
}

// NewConfig creates a new Config from cli context. defaultBinary is used when
// --binary is not set and may be empty.
func NewConfig(ctx *cli.Context, log log.Logger, defaultBinary string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	binary := ctx.String(flags.Binary.Name)
	if binary == "" {
		binary = defaultBinary
	}
	if binary == "" {
		return nil, errors.New("test binary is required")
	}
	absBinary, err := resolveBinary(binary)
	if err != nil {
		return nil, err
	}

	var absManifest string
	if manifest := ctx.String(flags.Manifest.Name); manifest != "" {
		absManifest, err = filepath.Abs(manifest)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", manifest, err)
		}
	}

	var logDir string
	if dir := ctx.String(flags.LogDir.Name); dir != "" {
		logDir, err = filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", dir, err)
		}
	}

	format, err := reporting.ParseFormat(ctx.String(flags.Format.Name))
	if err != nil {
		return nil, err
	}
	color, err := reporting.ParseColorMode(ctx.String(flags.Color.Name))
	if err != nil {
		return nil, err
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	cfg := &Config{
		Binary:          absBinary,
		Args:            ctx.StringSlice(flags.Args.Name),
		Manifest:        absManifest,
		DefaultTimeout:  ctx.Duration(flags.DefaultTimeout.Name),
		TimeoutOverride: ctx.Duration(flags.TimeoutOverride.Name),
		KillGrace:       ctx.Duration(flags.KillGrace.Name),
		Serial:          ctx.Bool(flags.Serial.Name),
		Concurrency:     ctx.Int(flags.Concurrency.Name),
		Filter: types.Filter{
			Pattern: ctx.String(flags.Filter.Name),
			Tags:    ctx.StringSlice(flags.Tags.Name),
		},
		Format:           format,
		Color:            color,
		LogDir:           logDir,
		MaxCaptureBytes:  ctx.Int(flags.MaxCaptureBytes.Name),
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		Repeat:           ctx.Int(flags.Repeat.Name),
		MetricsConfig:    opmetrics.ReadCLIConfig(ctx),
		Log:              log,
	}
	if cfg.Serial {
		cfg.Concurrency = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that flags cannot express
func (c *Config) Validate() error {
	if c.Binary == "" && c.Suite == nil {
		return errors.New("test binary is required")
	}
	if c.DefaultTimeout < 0 || c.TimeoutOverride < 0 || c.KillGrace < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if c.Concurrency < 0 {
		return errors.New("concurrency cannot be negative")
	}
	if c.MaxCaptureBytes < 0 {
		return errors.New("max capture bytes cannot be negative")
	}
	if c.Repeat < 1 {
		return errors.New("repeat must be at least 1")
	}
	if c.RunInterval < 0 {
		return errors.New("run interval cannot be negative")
	}
	if c.ShowProgress && c.ProgressInterval <= 0 {
		return errors.New("progress interval must be positive")
	}
	return nil
}

// Snapshot returns the effective configuration for logging
func (c *Config) Snapshot() types.EffectiveConfigSnapshot {
	return types.EffectiveConfigSnapshot{
		Runner: types.RunnerConfigSnapshot{
			DefaultTimeout:   c.DefaultTimeout,
			TimeoutOverride:  c.TimeoutOverride,
			KillGrace:        c.KillGrace,
			Serial:           c.Serial,
			Concurrency:      c.Concurrency,
			MaxCaptureBytes:  c.MaxCaptureBytes,
			ShowProgress:     c.ShowProgress,
			ProgressInterval: c.ProgressInterval,
		},
		Selection: types.SelectionConfigSnapshot{
			Filter: c.Filter.Pattern,
			Tags:   c.Filter.Tags,
		},
		Output: types.OutputConfigSnapshot{
			Format: string(c.Format),
			Color:  string(c.Color),
			LogDir: c.LogDir,
		},
		Execution: types.ExecutionConfigSnapshot{
			Binary:      c.Binary,
			Args:        c.Args,
			Manifest:    c.Manifest,
			RunInterval: c.RunInterval,
			RunOnce:     c.RunOnce,
			Repeat:      c.Repeat,
		},
	}
}

// resolveBinary finds the binary on PATH when given a bare name and makes it absolute
func resolveBinary(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("failed to find test binary '%s': %w", binary, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for test binary '%s': %w", binary, err)
	}
	return abs, nil
}
