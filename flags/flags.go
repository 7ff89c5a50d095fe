package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-isolator/reporting"
)

const EnvVarPrefix = "OP_ISOLATOR"

var (
	Binary = &cli.StringFlag{
		Name:    "binary",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BINARY"),
		Usage:   "Path to the test binary. Each test runs in its own process of this binary.",
	}
	Args = &cli.StringSliceFlag{
		Name:    "arg",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ARG"),
		Usage:   "Extra argument passed to every test process (repeatable)",
	}
	Manifest = &cli.StringFlag{
		Name:    "manifest",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MANIFEST"),
		Usage:   "Path to a YAML manifest with per-test timeouts, tags and skips",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   10 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout for tests that do not declare their own",
	}
	TimeoutOverride = &cli.DurationFlag{
		Name:    "timeout-override",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT_OVERRIDE"),
		Usage:   "Timeout applied to every test, replacing declared timeouts. 0 disables.",
	}
	KillGrace = &cli.DurationFlag{
		Name:    "kill-grace",
		Value:   2 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KILL_GRACE"),
		Usage:   "How long to wait for output pipes to drain after a test process exits",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Aliases: []string{"j"},
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of test processes to run at once (0 = auto-determine from CPU count)",
	}
	Serial = &cli.BoolFlag{
		Name:    "serial",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERIAL"),
		Usage:   "Run one test process at a time",
	}
	Filter = &cli.StringFlag{
		Name:    "filter",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FILTER"),
		Usage:   "Only run tests with a name component containing this substring",
	}
	Tags = &cli.StringSliceFlag{
		Name:    "tag",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TAG"),
		Usage:   "Only run tests carrying this tag (repeatable)",
	}
	Format = &cli.StringFlag{
		Name:    "format",
		Value:   "auto",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FORMAT"),
		Usage:   "Report format: auto, tap, libtest, json or table",
		Action: func(_ *cli.Context, v string) error {
			_, err := reporting.ParseFormat(v)
			return err
		},
	}
	Color = &cli.StringFlag{
		Name:    "color",
		Value:   "auto",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COLOR"),
		Usage:   "Colour output: auto, always or never",
		Action: func(_ *cli.Context, v string) error {
			_, err := reporting.ParseColorMode(v)
			return err
		},
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory to store per-test logs. Empty disables file logs.",
	}
	MaxCaptureBytes = &cli.IntFlag{
		Name:    "max-capture-bytes",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_CAPTURE_BYTES"),
		Usage:   "Keep at most this many trailing bytes of each stream per test (0 = unlimited)",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Periodically print which tests are still running",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Repeat = &cli.IntFlag{
		Name:    "repeat",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPEAT"),
		Usage:   "Run the suite this many times and report per-test stability",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	Binary,
	Args,
	Manifest,
	DefaultTimeout,
	TimeoutOverride,
	KillGrace,
	Concurrency,
	Serial,
	Filter,
	Tags,
	Format,
	Color,
	LogDir,
	MaxCaptureBytes,
	ShowProgress,
	ProgressInterval,
	RunInterval,
	Repeat,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
