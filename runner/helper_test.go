//go:build unix

package runner

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-isolator/protocol"
)

// TestMain doubles as the test binary the executor spawns: when launched with
// the test variable set it behaves according to the first name component.
func TestMain(m *testing.M) {
	if name := os.Getenv(protocol.EnvTest); name != "" {
		os.Exit(runHelper(name))
	}
	os.Exit(m.Run())
}

func runHelper(name string) int {
	f, err := protocol.OpenResultChannel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	results := protocol.NewWriter(f)

	behaviour, _, _ := strings.Cut(name, "/")
	switch behaviour {
	case "pass":
		fmt.Printf("hello from %s\n", name)
		return protocol.ExitPassed
	case "fail":
		fmt.Fprintln(os.Stderr, "about to fail")
		_ = results.Write(protocol.Record{Kind: protocol.KindFailed, Message: "assertion failed: 1 != 2"})
		return protocol.ExitFailed
	case "hugefail":
		// One record far beyond the reader's line limit, written raw
		line := `{"kind":"failed","message":"` + strings.Repeat("x", 2_000_000) + `"}` + "\n"
		if _, err := f.WriteString(line); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		return protocol.ExitFailed
	case "failcode":
		_ = results.Write(protocol.Record{Kind: protocol.KindFailed, Message: "bad state"})
		return 5
	case "silentfail":
		return protocol.ExitFailed
	case "panic":
		_ = results.Write(protocol.Record{Kind: protocol.KindPanicked, Message: "index out of range"})
		return protocol.ExitPanicked
	case "crash":
		fmt.Println("about to crash")
		_ = syscall.Kill(os.Getpid(), syscall.SIGKILL)
		time.Sleep(time.Minute)
		return protocol.ExitPassed
	case "exit3":
		return 3
	case "hang":
		fmt.Println("before hang")
		time.Sleep(time.Hour)
		return protocol.ExitPassed
	case "stubborn":
		// SIGTERM is ignored, only SIGKILL ends this one
		signal.Ignore(syscall.SIGTERM)
		fmt.Println("ignoring SIGTERM")
		time.Sleep(time.Hour)
		return protocol.ExitPassed
	case "background":
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fmt.Printf("marker %s goroutine %d\n", name, i)
				fmt.Fprintf(os.Stderr, "stderr %s goroutine %d\n", name, i)
			}()
		}
		wg.Wait()
		return protocol.ExitPassed
	case "stages":
		_ = results.Write(protocol.Record{Kind: protocol.KindStageStart, Stage: "setup"})
		_ = results.Write(protocol.Record{Kind: protocol.KindStageEnd, Stage: "setup", OK: true})
		_ = results.Write(protocol.Record{Kind: protocol.KindStageStart, Stage: "verify"})
		_ = results.Write(protocol.Record{Kind: protocol.KindStageEnd, Stage: "verify", OK: true})
		return protocol.ExitPassed
	case "spam":
		chunk := strings.Repeat("x", 1023) + "\n"
		for i := 0; i < 4096; i++ {
			_, _ = os.Stdout.WriteString(chunk)
		}
		return protocol.ExitPassed
	case "orphan":
		// Leave a grandchild behind that keeps our stdout open
		cmd := exec.Command(os.Args[0])
		cmd.Env = append(os.Environ(), protocol.EnvTest+"=hang/orphaned")
		cmd.Stdout = os.Stdout
		if err := cmd.Start(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Println("spawned orphan")
		return protocol.ExitPassed
	default:
		fmt.Fprintf(os.Stderr, "unknown helper behaviour %q\n", behaviour)
		return 2
	}
}
