package isolator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/ethereum-optimism/infra/op-isolator/flags"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// AppOptions configures the CLI app
type AppOptions struct {
	Name    string
	Version string
	// Binary is the test binary used when --binary is not given
	Binary string
	// Suite, when set, is run instead of discovering tests from the binary
	Suite *types.Suite
	// Out receives reports, os.Stdout when nil
	Out io.Writer
}

// NewApp builds the op-isolator CLI. Errors returned by the action are mapped
// to exit codes by ExitErrHandler.
func NewApp(opts AppOptions) *cli.App {
	if opts.Name == "" {
		opts.Name = "op-isolator"
	}

	app := cli.NewApp()
	app.Name = opts.Name
	app.Version = opts.Version
	app.Usage = "Run every test of a suite in its own process"
	app.Description = "op-isolator re-invokes a test binary once per test so that crashes, hangs and leaked goroutines of one test cannot affect another"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(func(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		return setup(ctx, closeApp, opts)
	})
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), ExitCode(err)))
	}
	return app
}

func setup(ctx *cli.Context, closeApp context.CancelCauseFunc, opts AppOptions) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := NewConfig(ctx, log, opts.Binary)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Suite = opts.Suite

	iso, err := New(ctx.Context, cfg, opts.Version, opts.Out, closeApp)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create isolator: %w", err))
	}
	return iso, nil
}
