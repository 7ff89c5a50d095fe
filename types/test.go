// Package types contains shared types used across the op-isolator engine
package types

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// NameSeparator joins the components of a grouped test name (e.g. "arith/div by zero")
const NameSeparator = "/"

// TestDescriptor is the immutable description of one runnable test.
// Its name doubles as the invocation key handed to the child process.
type TestDescriptor struct {
	name    string
	timeout time.Duration
	tags    []string
	skip    string
}

// DescriptorOption configures a TestDescriptor at construction time
type DescriptorOption func(*TestDescriptor)

// WithTimeout overrides the suite-wide default timeout for one test
func WithTimeout(d time.Duration) DescriptorOption {
	return func(t *TestDescriptor) {
		t.timeout = d
	}
}

// WithTags attaches filter tags to a test
func WithTags(tags ...string) DescriptorOption {
	return func(t *TestDescriptor) {
		for _, tag := range tags {
			if tag != "" && !slices.Contains(t.tags, tag) {
				t.tags = append(t.tags, tag)
			}
		}
	}
}

// WithSkip marks the test as skipped. The engine records it without spawning a process.
func WithSkip(reason string) DescriptorOption {
	return func(t *TestDescriptor) {
		if reason == "" {
			reason = "skipped"
		}
		t.skip = reason
	}
}

// NewDescriptor creates a descriptor with the given name
func NewDescriptor(name string, opts ...DescriptorOption) TestDescriptor {
	d := TestDescriptor{name: name}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Name returns the unique test name, also used as the invocation key
func (d TestDescriptor) Name() string { return d.name }

// Timeout returns the per-test timeout override, zero when the suite default applies
func (d TestDescriptor) Timeout() time.Duration { return d.timeout }

// Tags returns a copy of the test's tags
func (d TestDescriptor) Tags() []string { return slices.Clone(d.tags) }

// HasTag reports whether the test carries the given tag
func (d TestDescriptor) HasTag(tag string) bool { return slices.Contains(d.tags, tag) }

// SkipReason returns the declared skip reason, empty if the test should run
func (d TestDescriptor) SkipReason() string { return d.skip }

// Skipped reports whether the test is declared as skipped
func (d TestDescriptor) Skipped() bool { return d.skip != "" }

// Path splits the name into its group components
func (d TestDescriptor) Path() []string {
	if d.name == "" {
		return []string{}
	}
	return strings.Split(d.name, NameSeparator)
}

// With returns a copy of the descriptor with additional options applied
func (d TestDescriptor) With(opts ...DescriptorOption) TestDescriptor {
	cp := d
	cp.tags = slices.Clone(d.tags)
	for _, opt := range opts {
		opt(&cp)
	}
	return cp
}

// EffectiveTimeout resolves the timeout for this test. A non-zero override
// applies to every test, then the descriptor's own timeout, then the default.
func (d TestDescriptor) EffectiveTimeout(defaultTimeout, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if d.timeout > 0 {
		return d.timeout
	}
	return defaultTimeout
}

func (d TestDescriptor) String() string {
	return fmt.Sprintf("%s (timeout=%v, tags=%v)", d.name, d.timeout, d.tags)
}
