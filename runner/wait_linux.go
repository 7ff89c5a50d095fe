//go:build linux

package runner

import (
	"errors"

	"golang.org/x/sys/unix"
)

// waitExited blocks until the child has exited without reaping it. It reports
// false if that could not be done, in which case the caller reaps as usual.
func waitExited(pid int) bool {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == nil {
			return true
		}
		if !errors.Is(err, unix.EINTR) {
			return false
		}
	}
}
