package types

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPreservesOrder(t *testing.T) {
	suite, err := FromDescriptors(
		NewDescriptor("b"),
		NewDescriptor("a"),
		NewDescriptor("c"),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, suite.Names())
	assert.Equal(t, 3, suite.Len())

	d, ok := suite.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "a", d.Name())

	_, ok = suite.Lookup("missing")
	assert.False(t, ok)
}

func TestBuildDuplicateName(t *testing.T) {
	calls := 0
	gen := func(yield func(TestDescriptor) bool) {
		for _, name := range []string{"x", "y", "x", "z"} {
			calls++
			if !yield(NewDescriptor(name)) {
				return
			}
		}
	}

	suite, err := Build(gen)
	require.Error(t, err)
	assert.Nil(t, suite)
	assert.True(t, IsDuplicateNameError(err))

	var dup *DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "x", dup.Name)
	assert.Equal(t, 0, dup.First)
	assert.Equal(t, 2, dup.Second)
	assert.Equal(t, 3, calls, "build should stop at the first duplicate")
}

func TestBuildEmptyName(t *testing.T) {
	_, err := FromDescriptors(NewDescriptor("ok"), NewDescriptor(""))
	require.ErrorIs(t, err, ErrEmptyName)
	assert.False(t, IsDuplicateNameError(err))
}

func TestBuildNilAndEmptyGenerator(t *testing.T) {
	suite, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, suite.Len())

	suite, err = FromDescriptors()
	require.NoError(t, err)
	assert.Equal(t, 0, suite.Len())
	assert.Empty(t, suite.Names())
}

func TestSweep(t *testing.T) {
	gen := Sweep("mult", []int{1, 2, 3}, func(i int) string {
		return fmt.Sprintf("%d x 2 = %d", i, i*2)
	}, WithTags("table"), WithTimeout(time.Second))

	suite, err := Build(gen)
	require.NoError(t, err)
	assert.Equal(t, []string{"mult/1 x 2 = 2", "mult/2 x 2 = 4", "mult/3 x 2 = 6"}, suite.Names())
	for _, d := range suite.All() {
		assert.True(t, d.HasTag("table"))
		assert.Equal(t, time.Second, d.Timeout())
	}
}

func TestSweepDuplicateLabels(t *testing.T) {
	gen := Sweep("p", []int{1, 2, 1}, func(i int) string { return fmt.Sprint(i) })
	_, err := Build(gen)
	assert.True(t, IsDuplicateNameError(err))
}

func TestConcat(t *testing.T) {
	gen := Concat(
		slices.Values([]TestDescriptor{NewDescriptor("a")}),
		Sweep("s", []string{"x", "y"}, func(s string) string { return s }),
	)
	suite, err := Build(gen)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "s/x", "s/y"}, suite.Names())
}

func TestDescriptorImmutability(t *testing.T) {
	d := NewDescriptor("t", WithTags("a", "b", "a"))
	assert.Equal(t, []string{"a", "b"}, d.Tags())

	tags := d.Tags()
	tags[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, d.Tags())

	d2 := d.With(WithTags("c"))
	assert.Equal(t, []string{"a", "b"}, d.Tags())
	assert.Equal(t, []string{"a", "b", "c"}, d2.Tags())

	suite, err := FromDescriptors(d)
	require.NoError(t, err)
	descs := suite.Descriptors()
	descs[0] = NewDescriptor("other")
	assert.Equal(t, "t", suite.At(0).Name())
}

func TestEffectiveTimeout(t *testing.T) {
	tests := []struct {
		name     string
		desc     TestDescriptor
		def      time.Duration
		override time.Duration
		expected time.Duration
	}{
		{"default applies", NewDescriptor("a"), 10 * time.Second, 0, 10 * time.Second},
		{"descriptor overrides default", NewDescriptor("a", WithTimeout(time.Second)), 10 * time.Second, 0, time.Second},
		{"universal override wins", NewDescriptor("a", WithTimeout(time.Second)), 10 * time.Second, 3 * time.Second, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.desc.EffectiveTimeout(tt.def, tt.override))
		})
	}
}

func TestFilter(t *testing.T) {
	suite, err := FromDescriptors(
		NewDescriptor("arith/addition", WithTags("fast")),
		NewDescriptor("arith/bad math"),
		NewDescriptor("loops/infinite loop 1", WithTags("slow")),
		NewDescriptor("loops/infinite loop 2", WithTags("slow", "flaky")),
	)
	require.NoError(t, err)

	tests := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{"zero filter keeps everything", Filter{}, suite.Names()},
		{"component substring", Filter{Pattern: "arith"}, []string{"arith/addition", "arith/bad math"}},
		{"leaf substring", Filter{Pattern: "loop 2"}, []string{"loops/infinite loop 2"}},
		{"pattern spanning groups", Filter{Pattern: "h/bad"}, []string{"arith/bad math"}},
		{"tags", Filter{Tags: []string{"fast", "flaky"}}, []string{"arith/addition", "loops/infinite loop 2"}},
		{"pattern and tags", Filter{Pattern: "loop", Tags: []string{"flaky"}}, []string{"loops/infinite loop 2"}},
		{"exact", Filter{Exact: []string{"arith/bad math"}}, []string{"arith/bad math"}},
		{"no match", Filter{Pattern: "nothing"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filtered := suite.Filter(tt.filter)
			assert.Equal(t, tt.expected, filtered.Names())
			for _, name := range tt.expected {
				_, ok := filtered.Lookup(name)
				assert.True(t, ok)
			}
		})
	}
	assert.True(t, Filter{}.IsZero())
	assert.False(t, Filter{Tags: []string{"x"}}.IsZero())
}

func TestSuiteMaxTimeout(t *testing.T) {
	suite, err := FromDescriptors(
		NewDescriptor("a", WithTimeout(time.Second)),
		NewDescriptor("b", WithTimeout(30*time.Second)),
		NewDescriptor("c"),
	)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, suite.MaxTimeout(10*time.Second, 0))
	assert.Equal(t, 2*time.Second, suite.MaxTimeout(10*time.Second, 2*time.Second))
}
