package types

import "time"

// EffectiveConfigSnapshot represents the effective runtime configuration grouped by domain.
type EffectiveConfigSnapshot struct {
	Runner    RunnerConfigSnapshot    `json:"runner"`
	Selection SelectionConfigSnapshot `json:"selection"`
	Output    OutputConfigSnapshot    `json:"output"`
	Execution ExecutionConfigSnapshot `json:"execution"`

	// Metadata
	RunID string `json:"runId,omitempty"`
}

type RunnerConfigSnapshot struct {
	DefaultTimeout   time.Duration `json:"defaultTimeout"`
	TimeoutOverride  time.Duration `json:"timeoutOverride,omitempty"`
	KillGrace        time.Duration `json:"killGrace"`
	Serial           bool          `json:"serial"`
	Concurrency      int           `json:"concurrency"`
	MaxCaptureBytes  int           `json:"maxCaptureBytes"`
	ShowProgress     bool          `json:"showProgress"`
	ProgressInterval time.Duration `json:"progressInterval"`
}

type SelectionConfigSnapshot struct {
	Filter string   `json:"filter,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

type OutputConfigSnapshot struct {
	Format string `json:"format"`
	Color  string `json:"color"`
	LogDir string `json:"logDir,omitempty"`
}

type ExecutionConfigSnapshot struct {
	Binary      string        `json:"binary"`
	Args        []string      `json:"args,omitempty"`
	Manifest    string        `json:"manifest,omitempty"`
	RunInterval time.Duration `json:"runInterval"`
	RunOnce     bool          `json:"runOnce"`
	Repeat      int           `json:"repeat"`
}
