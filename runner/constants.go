package runner

import "time"

const (
	// DefaultTestTimeout applies to tests that declare no timeout of their own
	DefaultTestTimeout = 10 * time.Second

	// DefaultKillGrace bounds how long we wait for output pipes after a child exits
	DefaultKillGrace = 2 * time.Second

	// MaxReasonableConcurrency caps auto-determined concurrency to avoid resource exhaustion
	MaxReasonableConcurrency = 32

	// InterruptedReason is the skip reason for tests killed by run-level cancellation
	InterruptedReason = "interrupted"

	// NotRunReason is the skip reason for tests that never started because the run was cancelled
	NotRunReason = "not run: run cancelled"
)
