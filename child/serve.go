package child

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/ethereum-optimism/infra/op-isolator/protocol"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// Serve runs one body and returns the exit code the process should end with.
// The verdict is also written to results so the engine can show the message.
func Serve(name string, body Body, stdout, stderr io.Writer, results io.Writer) (code int) {
	w := protocol.NewWriter(results)

	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprint(p)
			fmt.Fprintf(stderr, "test %s panicked: %s\n\n%s", name, msg, debug.Stack())
			_ = w.Write(protocol.Record{Kind: protocol.KindPanicked, Message: msg})
			code = protocol.ExitPanicked
		}
	}()

	if err := body(newReporter(name, stdout, w)); err != nil {
		fmt.Fprintf(stderr, "test %s failed: %v\n", name, err)
		_ = w.Write(protocol.Record{Kind: protocol.KindFailed, Message: err.Error()})
		return protocol.ExitFailed
	}
	return protocol.ExitPassed
}

// Dispatch handles the engine's invocation protocol. handled is false when
// the binary was not launched for listing or for a single test.
func Dispatch(suite *types.Suite, bodies Bodies, getenv func(string) string, stdout, stderr io.Writer) (code int, handled bool) {
	if getenv(protocol.EnvList) != "" {
		if err := protocol.WriteListing(stdout, protocol.ListingFromSuite(suite)); err != nil {
			fmt.Fprintln(stderr, err)
			return 2, true
		}
		return protocol.ExitPassed, true
	}

	name := getenv(protocol.EnvTest)
	if name == "" {
		return 0, false
	}
	body, ok := bodies[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown test %q\n", name)
		return 2, true
	}

	results, err := protocol.OpenResultChannel()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2, true
	}
	if results != nil {
		defer results.Close()
		return Serve(name, body, stdout, stderr, results), true
	}
	return Serve(name, body, stdout, stderr, nil), true
}
