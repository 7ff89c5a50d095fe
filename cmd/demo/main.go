//go:build unix

// Command demo is a small test binary built with the child package. Run it
// directly to have it orchestrate itself, or point op-isolator at it.
package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/ethereum-optimism/infra/op-isolator/child"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

func main() {
	child.Main(
		child.Group("arith",
			child.Case("add", func(r *child.Reporter) error {
				if got := 1 + 1; got != 2 {
					return fmt.Errorf("1 + 1 = %d", got)
				}
				return nil
			}),
			child.ShouldPanic("divide by zero", child.Case("div by zero", func(*child.Reporter) error {
				var zero int
				fmt.Println(1 / zero)
				return nil
			})),
			child.Sweep("square", []int{2, 3, 4}, func(i int) string { return fmt.Sprint(i) }, func(i int) child.Body {
				return func(r *child.Reporter) error {
					r.Logf("%d^2 = %d", i, i*i)
					return nil
				}
			}),
		),
		child.Group("stages",
			child.Case("deploy", func(r *child.Reporter) error {
				if err := r.Stage("setup", func() error { return nil }); err != nil {
					return err
				}
				return r.Stage("verify", func() error {
					r.Logf("verifying")
					return nil
				})
			}),
		),
		child.Apply(child.Group("isolation",
			child.Case("background output", func(r *child.Reporter) error {
				done := make(chan struct{})
				go func() {
					defer close(done)
					fmt.Fprintln(os.Stderr, "written from a goroutine")
				}()
				<-done
				return nil
			}),
			child.Case("crash", func(*child.Reporter) error {
				return syscall.Kill(os.Getpid(), syscall.SIGKILL)
			}),
			child.Case("hang", func(*child.Reporter) error {
				select {}
			}, types.WithTimeout(time.Second)),
			child.Case("failure", func(*child.Reporter) error {
				return errors.New("expected failure")
			}),
		), types.WithTags("isolation")),
		child.Skip("needs a network", child.Case("net/dial", func(*child.Reporter) error { return nil })),
	)
}
