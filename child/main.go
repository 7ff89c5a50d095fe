package child

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"

	isolator "github.com/ethereum-optimism/infra/op-isolator"
	"github.com/ethereum-optimism/infra/op-isolator/exitcodes"
)

// Main is the entry point of a test binary. Launched by the engine it runs a
// single test or prints the listing; launched directly it orchestrates the
// whole suite, re-invoking itself once per test. It never returns.
func Main(nodes ...Node) {
	suite, bodies, err := Plan(nodes...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid test tree: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}

	if code, handled := Dispatch(suite, bodies, os.Getenv, os.Stdout, os.Stderr); handled {
		os.Exit(code)
	}

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate test binary: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}

	app := isolator.NewApp(isolator.AppOptions{
		Name:   "op-isolator",
		Binary: self,
		Suite:  suite,
	})
	ctx := ctxinterrupt.WithSignalWaiterMain(context.Background())
	if err := app.RunContext(ctx, os.Args); err != nil {
		os.Exit(isolator.ExitCode(err))
	}
	os.Exit(exitcodes.Success)
}
