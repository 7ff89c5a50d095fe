//go:build !linux

package runner

// waitExited is only implemented on linux
func waitExited(pid int) bool {
	return false
}
