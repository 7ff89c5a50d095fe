package runner

import (
	"context"
	"sync"
	"time"
)

// KillFunc forcibly terminates a started child and everything in its process group
type KillFunc func(pid int) error

// Supervisor enforces the deadline of one child process. It never sends a
// catchable signal: on expiry the process group is killed outright.
type Supervisor struct {
	kill KillFunc

	mu        sync.Mutex
	timer     *time.Timer
	start     time.Time
	fired     bool
	cancelled bool
	stopped   bool
	elapsed   time.Duration
	killErr   error
	done      chan struct{}
}

// NewSupervisor creates a supervisor that terminates children with kill
func NewSupervisor(kill KillFunc) *Supervisor {
	if kill == nil {
		kill = killProcessGroup
	}
	return &Supervisor{kill: kill, done: make(chan struct{})}
}

// Watch arms the deadline for a started child. A non-positive timeout disables
// the deadline; cancellation of ctx kills the child in either case.
func (s *Supervisor) Watch(ctx context.Context, pid int, timeout time.Duration) {
	s.mu.Lock()
	s.start = time.Now()
	if timeout > 0 {
		s.timer = time.AfterFunc(timeout, func() { s.terminate(pid, false) })
	}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.terminate(pid, true)
		case <-s.done:
		}
	}()
}

func (s *Supervisor) terminate(pid int, cancelled bool) {
	s.mu.Lock()
	if s.stopped || s.fired || s.cancelled {
		s.mu.Unlock()
		return
	}
	if cancelled {
		s.cancelled = true
	} else {
		s.fired = true
	}
	s.elapsed = time.Since(s.start)
	// Held across the kill so Stop cannot return while it is in flight
	s.killErr = s.kill(pid)
	s.mu.Unlock()
}

// Stop disarms the supervisor once the child has exited. No kill is issued
// after Stop returns. It reports whether the deadline fired, whether the run
// was cancelled, and the elapsed time.
func (s *Supervisor) Stop() (timedOut bool, cancelled bool, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		if s.timer != nil {
			s.timer.Stop()
		}
		close(s.done)
		if !s.fired && !s.cancelled {
			s.elapsed = time.Since(s.start)
		}
	}
	return s.fired, s.cancelled, s.elapsed
}

// KillErr returns the error of the kill attempt, if one was made
func (s *Supervisor) KillErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killErr
}
