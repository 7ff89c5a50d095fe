package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

func TestNewFileLoggerValidation(t *testing.T) {
	_, err := NewFileLogger(t.TempDir(), "")
	assert.Error(t, err)

	_, err = NewFileLogger("", "run")
	assert.Error(t, err)
}

func TestFileLogger(t *testing.T) {
	baseDir := t.TempDir()
	logger, err := NewFileLogger(baseDir, "run-42")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(baseDir, "testrun-run-42"), logger.RunDir())
	for _, dir := range []string{logger.PassedDir(), logger.FailedDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	suite, err := types.FromDescriptors(
		types.NewDescriptor("math/add ok", types.WithTags("fast")),
		types.NewDescriptor("math/div"),
	)
	require.NoError(t, err)
	runs := []*types.TestRun{
		{
			Descriptor: suite.At(0),
			Outcome:    types.Passed(),
			Stdout:     []byte("adding\n"),
			Duration:   5 * time.Millisecond,
			Stages:     []types.StageEvent{{Stage: "setup", Start: true}, {Stage: "setup", OK: true}},
		},
		{
			Descriptor: suite.At(1),
			Outcome:    types.Failed("division by zero"),
			Stderr:     []byte("\x1b[31mboom\x1b[0m\n"),
			Duration:   7 * time.Millisecond,
		},
	}

	logger.Init(suite)
	for _, run := range runs {
		logger.Report(run)
	}
	report := types.NewReport("run-42", runs, time.Now(), 20*time.Millisecond, false)
	require.NoError(t, logger.Done(report))

	passed, ok := logger.TestLogPath("math/add ok")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(logger.PassedDir(), "0001-math_add_ok.log"), passed)
	content, err := os.ReadFile(passed)
	require.NoError(t, err)
	assert.Contains(t, string(content), "TEST: math/add ok")
	assert.Contains(t, string(content), "Tags:     fast")
	assert.Contains(t, string(content), "  adding")
	assert.Contains(t, string(content), "  start setup")
	assert.Contains(t, string(content), "  done  setup")

	failed, ok := logger.TestLogPath("math/div")
	require.True(t, ok)
	assert.Equal(t, logger.FailedDir(), filepath.Dir(failed))
	content, err = os.ReadFile(failed)
	require.NoError(t, err)
	assert.Contains(t, string(content), "division by zero")
	assert.Contains(t, string(content), "  boom")
	assert.NotContains(t, string(content), "\x1b[", "ANSI codes are stripped")

	all, err := os.ReadFile(logger.AllLogsFile())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(all), "run run-42: 2 tests\n"))
	assert.Less(t, strings.Index(string(all), "math/add ok"), strings.Index(string(all), "math/div"))

	summary, err := os.ReadFile(logger.SummaryFile())
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Status:    FAIL")
	assert.Contains(t, string(summary), "math/div: failed: division by zero")
	assert.Contains(t, string(summary), report.Summary.String())
}

func TestAsyncFileRejectsWritesAfterClose(t *testing.T) {
	af, err := NewAsyncFile(filepath.Join(t.TempDir(), "out.log"))
	require.NoError(t, err)
	require.NoError(t, af.Write([]byte("one\n")))
	require.NoError(t, af.Close())
	assert.Error(t, af.Write([]byte("two\n")))
	assert.NoError(t, af.Close(), "closing twice is harmless")
}

func TestSafeFilename(t *testing.T) {
	tests := map[string]string{
		"simple":             "simple",
		"group/case":         "group_case",
		"a b:c*d?e":          "a_b_c_d_e",
		`quote"<pipe>|back\`: "quote__pipe__back_",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeFilename(in), in)
	}
}
