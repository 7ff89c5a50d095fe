package types

import (
	"fmt"
	"time"
)

// OutcomeKind is the terminal classification of a single test execution
type OutcomeKind string

const (
	OutcomePassed     OutcomeKind = "passed"
	OutcomeFailed     OutcomeKind = "failed"
	OutcomePanicked   OutcomeKind = "panicked"
	OutcomeTimedOut   OutcomeKind = "timed_out"
	OutcomeCrashed    OutcomeKind = "crashed"
	OutcomeSpawnError OutcomeKind = "spawn_error"
	OutcomeSkipped    OutcomeKind = "skipped"
)

// AllOutcomeKinds lists every kind in display order
var AllOutcomeKinds = []OutcomeKind{
	OutcomePassed,
	OutcomeFailed,
	OutcomePanicked,
	OutcomeTimedOut,
	OutcomeCrashed,
	OutcomeSpawnError,
	OutcomeSkipped,
}

// String implements the Stringer interface for OutcomeKind
func (k OutcomeKind) String() string {
	return string(k)
}

// Outcome is a tagged variant. Only the fields relevant to Kind are set.
type Outcome struct {
	Kind     OutcomeKind
	Message  string        // failure or panic message, skip reason
	Elapsed  time.Duration // time until the supervisor killed the child
	ExitCode int           // exit status of a failed or crashed child, -1 when killed by a signal
	Signal   string        // name of the signal that terminated a crashed child
	Cause    error         // why the process could not be spawned
}

func Passed() Outcome {
	return Outcome{Kind: OutcomePassed}
}

func Failed(message string) Outcome {
	return Outcome{Kind: OutcomeFailed, Message: message}
}

// FailedWithCode is a failure reported by a child that exited with code
func FailedWithCode(message string, code int) Outcome {
	return Outcome{Kind: OutcomeFailed, Message: message, ExitCode: code}
}

func Panicked(message string) Outcome {
	return Outcome{Kind: OutcomePanicked, Message: message}
}

func TimedOut(elapsed time.Duration) Outcome {
	return Outcome{Kind: OutcomeTimedOut, Elapsed: elapsed}
}

func CrashedWithSignal(signal string) Outcome {
	return Outcome{Kind: OutcomeCrashed, ExitCode: -1, Signal: signal}
}

func CrashedWithCode(code int) Outcome {
	return Outcome{Kind: OutcomeCrashed, ExitCode: code}
}

func SpawnError(cause error) Outcome {
	return Outcome{Kind: OutcomeSpawnError, Cause: cause}
}

func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Message: reason}
}

// IsOK reports whether the outcome counts towards a successful run
func (o Outcome) IsOK() bool {
	return o.Kind == OutcomePassed || o.Kind == OutcomeSkipped
}

// Detail returns a one-line human description of the outcome payload
func (o Outcome) Detail() string {
	switch o.Kind {
	case OutcomePassed:
		return ""
	case OutcomeFailed, OutcomePanicked, OutcomeSkipped:
		return o.Message
	case OutcomeTimedOut:
		return fmt.Sprintf("timed out after %v", o.Elapsed.Truncate(time.Millisecond))
	case OutcomeCrashed:
		if o.Signal != "" {
			return fmt.Sprintf("killed by signal %s", o.Signal)
		}
		return fmt.Sprintf("exited with code %d", o.ExitCode)
	case OutcomeSpawnError:
		if o.Cause == nil {
			return "failed to spawn"
		}
		return o.Cause.Error()
	default:
		return "unknown outcome"
	}
}

func (o Outcome) String() string {
	if detail := o.Detail(); detail != "" {
		return fmt.Sprintf("%s: %s", o.Kind, detail)
	}
	return string(o.Kind)
}

// Equivalent compares two outcomes by kind and payload, ignoring timing
// (Elapsed) and the identity of spawn errors.
func (o Outcome) Equivalent(other Outcome) bool {
	if o.Kind != other.Kind {
		return false
	}
	switch o.Kind {
	case OutcomeFailed, OutcomePanicked, OutcomeSkipped:
		return o.Message == other.Message
	case OutcomeCrashed:
		return o.ExitCode == other.ExitCode && o.Signal == other.Signal
	default:
		return true
	}
}
