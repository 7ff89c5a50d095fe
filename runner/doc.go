// Package runner executes a suite with one child process per test.
//
// The main components are:
//   - ProcessExecutor: spawns one child for a descriptor, captures its output and classifies how it ended
//   - Supervisor: enforces the per-test deadline by killing the child's process group
//   - WorkerPool: drains a suite into a bounded set of workers in suite order
//   - ResultCollector: holds exactly one TestRun per suite position and builds the Report
//   - TestRunner: wires the above together with progress, tracing and metrics
//
// A failure in one child never affects another: every way a child can end,
// including failing to start, is turned into an Outcome on that test's TestRun.
package runner
