package types

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"
)

// ErrEmptyName is returned when a generator yields a descriptor without a name
var ErrEmptyName = errors.New("test descriptor has an empty name")

// DuplicateNameError is returned when two descriptors in one suite share a name
type DuplicateNameError struct {
	Name   string
	First  int // position of the first descriptor with this name
	Second int // position of the clashing descriptor
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate test name %q (positions %d and %d)", e.Name, e.First, e.Second)
}

// IsDuplicateNameError checks if the error is or wraps a DuplicateNameError
func IsDuplicateNameError(err error) bool {
	var dup *DuplicateNameError
	return err != nil && errors.As(err, &dup)
}

// Suite is an ordered collection of uniquely named test descriptors
type Suite struct {
	descriptors []TestDescriptor
	index       map[string]int
}

// Build drains the generator into a Suite. It fails on the first duplicate or
// empty name, before anything is executed.
func Build(gen iter.Seq[TestDescriptor]) (*Suite, error) {
	s := &Suite{index: make(map[string]int)}
	if gen == nil {
		return s, nil
	}
	for d := range gen {
		if d.name == "" {
			return nil, fmt.Errorf("descriptor at position %d: %w", len(s.descriptors), ErrEmptyName)
		}
		if first, exists := s.index[d.name]; exists {
			return nil, &DuplicateNameError{Name: d.name, First: first, Second: len(s.descriptors)}
		}
		s.index[d.name] = len(s.descriptors)
		s.descriptors = append(s.descriptors, d)
	}
	return s, nil
}

// FromDescriptors builds a suite from an explicit list
func FromDescriptors(descriptors ...TestDescriptor) (*Suite, error) {
	return Build(slices.Values(descriptors))
}

// Concat chains several generators into one, preserving order
func Concat(gens ...iter.Seq[TestDescriptor]) iter.Seq[TestDescriptor] {
	return func(yield func(TestDescriptor) bool) {
		for _, gen := range gens {
			for d := range gen {
				if !yield(d) {
					return
				}
			}
		}
	}
}

// Sweep generates one descriptor per parameter. The descriptors differ only in
// name: prefix + NameSeparator + label(param).
func Sweep[P any](prefix string, params []P, label func(P) string, opts ...DescriptorOption) iter.Seq[TestDescriptor] {
	return func(yield func(TestDescriptor) bool) {
		for _, p := range params {
			name := label(p)
			if prefix != "" {
				name = prefix + NameSeparator + name
			}
			if !yield(NewDescriptor(name, opts...)) {
				return
			}
		}
	}
}

// Len returns the number of descriptors
func (s *Suite) Len() int {
	if s == nil {
		return 0
	}
	return len(s.descriptors)
}

// At returns the descriptor at position i
func (s *Suite) At(i int) TestDescriptor {
	return s.descriptors[i]
}

// Descriptors returns a copy of the ordered descriptors
func (s *Suite) Descriptors() []TestDescriptor {
	if s == nil {
		return nil
	}
	return slices.Clone(s.descriptors)
}

// All iterates over the descriptors in suite order
func (s *Suite) All() iter.Seq2[int, TestDescriptor] {
	return func(yield func(int, TestDescriptor) bool) {
		if s == nil {
			return
		}
		for i, d := range s.descriptors {
			if !yield(i, d) {
				return
			}
		}
	}
}

// Lookup finds a descriptor by name
func (s *Suite) Lookup(name string) (TestDescriptor, bool) {
	if s == nil {
		return TestDescriptor{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return TestDescriptor{}, false
	}
	return s.descriptors[i], true
}

// Names returns the test names in suite order
func (s *Suite) Names() []string {
	names := make([]string, 0, s.Len())
	for _, d := range s.All() {
		names = append(names, d.name)
	}
	return names
}

// MaxTimeout returns the largest effective timeout among the suite's tests
func (s *Suite) MaxTimeout(defaultTimeout, override time.Duration) time.Duration {
	var longest time.Duration
	for _, d := range s.All() {
		longest = max(longest, d.EffectiveTimeout(defaultTimeout, override))
	}
	return longest
}

// Filter restricts which descriptors enter the scheduler
type Filter struct {
	// Pattern must be a substring of at least one name component. Empty matches all.
	Pattern string
	// Tags selects tests carrying at least one of the tags. Empty matches all.
	Tags []string
	// Exact selects only tests whose full name equals one of the entries.
	Exact []string
}

// IsZero reports whether the filter selects everything
func (f Filter) IsZero() bool {
	return f.Pattern == "" && len(f.Tags) == 0 && len(f.Exact) == 0
}

// Matches reports whether a descriptor passes the filter
func (f Filter) Matches(d TestDescriptor) bool {
	if len(f.Exact) > 0 && !slices.Contains(f.Exact, d.name) {
		return false
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(f.Tags, d.HasTag) {
		return false
	}
	if f.Pattern != "" {
		if strings.Contains(f.Pattern, NameSeparator) {
			return strings.Contains(d.name, f.Pattern)
		}
		return slices.ContainsFunc(d.Path(), func(component string) bool {
			return strings.Contains(component, f.Pattern)
		})
	}
	return true
}

// Filter returns a new suite with only the matching descriptors, in the same order
func (s *Suite) Filter(f Filter) *Suite {
	out := &Suite{index: make(map[string]int)}
	for _, d := range s.All() {
		if f.Matches(d) {
			out.index[d.name] = len(out.descriptors)
			out.descriptors = append(out.descriptors, d)
		}
	}
	return out
}
