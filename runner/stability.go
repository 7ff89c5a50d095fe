package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-isolator/metrics"
	"github.com/ethereum-optimism/infra/op-isolator/types"
)

// Stability recommendations
const (
	RecommendationStable = "STABLE"
	RecommendationFlaky  = "FLAKY"
	RecommendationBroken = "BROKEN"
)

const maxFailureLogs = 5

// StabilityResult aggregates one test across repeated runs
type StabilityResult struct {
	TestName       string                    `json:"test_name"`
	TotalRuns      int                       `json:"total_runs"`
	Passes         int                       `json:"passes"`
	Failures       int                       `json:"failures"`
	Skipped        int                       `json:"skipped"`
	Outcomes       map[types.OutcomeKind]int `json:"outcomes"`
	PassRate       float64                   `json:"pass_rate"`
	AvgDuration    time.Duration             `json:"avg_duration"`
	MinDuration    time.Duration             `json:"min_duration"`
	MaxDuration    time.Duration             `json:"max_duration"`
	FailureLogs    []string                  `json:"failure_logs,omitempty"`
	Recommendation string                    `json:"recommendation"`

	// LastFailures keeps the most recent outcome of every non-OK kind
	LastFailures map[types.OutcomeKind]types.Outcome `json:"-"`
}

// DominantFailure returns the non-OK kind seen most often, the earlier kind
// in types.AllOutcomeKinds winning ties. ok is false when nothing failed.
func (r StabilityResult) DominantFailure() (kind types.OutcomeKind, ok bool) {
	best := 0
	for _, k := range types.AllOutcomeKinds {
		if k == types.OutcomePassed || k == types.OutcomeSkipped {
			continue
		}
		if n := r.Outcomes[k]; n > best {
			kind, best = k, n
		}
	}
	if best == 0 && r.Failures > 0 {
		return types.OutcomeFailed, true
	}
	return kind, best > 0
}

// FailureBreakdown lists the non-OK kinds with their counts, e.g. "crashed=3 timed_out=1"
func (r StabilityResult) FailureBreakdown() string {
	var parts []string
	for _, k := range types.AllOutcomeKinds {
		if k == types.OutcomePassed || k == types.OutcomeSkipped {
			continue
		}
		if n := r.Outcomes[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	return strings.Join(parts, " ")
}

// StabilityReport is the result of running a suite several times
type StabilityReport struct {
	Iterations  int               `json:"iterations"`
	Completed   int               `json:"completed"`
	Tests       []StabilityResult `json:"tests"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Unstable returns the tests that did not pass on every run
func (r *StabilityReport) Unstable() []StabilityResult {
	var out []StabilityResult
	for _, t := range r.Tests {
		if t.Recommendation != RecommendationStable {
			out = append(out, t)
		}
	}
	return out
}

// StabilityRunner runs a suite repeatedly to find flaky tests
type StabilityRunner struct {
	baseRunner TestRunner
	iterations int
	log        log.Logger
}

// NewStabilityRunner creates a new stability runner
func NewStabilityRunner(baseRunner TestRunner, iterations int, log log.Logger) (*StabilityRunner, error) {
	if baseRunner == nil {
		return nil, fmt.Errorf("base runner cannot be nil")
	}
	if iterations < 1 {
		return nil, fmt.Errorf("iterations must be at least 1")
	}
	return &StabilityRunner{
		baseRunner: baseRunner,
		iterations: iterations,
		log:        log,
	}, nil
}

// Run executes the suite the configured number of times. Iterations stop
// early when ctx is cancelled; a cancelled iteration is not counted.
func (s *StabilityRunner) Run(ctx context.Context, suite *types.Suite) (*StabilityReport, error) {
	s.log.Info("Starting stability analysis", "tests", suite.Len(), "iterations", s.iterations)

	var reports []*types.Report
	for i := 1; i <= s.iterations; i++ {
		if ctx.Err() != nil {
			s.log.Warn("Stability analysis interrupted", "completed", len(reports))
			break
		}
		s.log.Info("Running iteration", "iteration", i, "total", s.iterations)
		report, err := s.baseRunner.Run(ctx, suite)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		if report.Cancelled {
			s.log.Warn("Iteration cancelled, discarding", "iteration", i)
			break
		}
		reports = append(reports, report)
	}

	report := aggregateStability(suite, reports)
	report.Iterations = s.iterations
	for _, t := range report.Tests {
		metrics.RecordPassRate(t.TestName, t.PassRate)
	}
	return report, nil
}

func aggregateStability(suite *types.Suite, reports []*types.Report) *StabilityReport {
	out := &StabilityReport{
		Completed:   len(reports),
		GeneratedAt: time.Now(),
	}

	for i, desc := range suite.All() {
		result := StabilityResult{
			TestName: desc.Name(),
			Outcomes: make(map[types.OutcomeKind]int),
		}
		var totalDuration time.Duration
		for _, report := range reports {
			run := report.Runs[i]
			result.TotalRuns++
			result.Outcomes[run.Outcome.Kind]++
			switch {
			case run.Outcome.Kind == types.OutcomePassed:
				result.Passes++
			case run.Outcome.Kind == types.OutcomeSkipped:
				result.Skipped++
			default:
				result.Failures++
				if result.LastFailures == nil {
					result.LastFailures = make(map[types.OutcomeKind]types.Outcome)
				}
				result.LastFailures[run.Outcome.Kind] = run.Outcome
				if len(result.FailureLogs) < maxFailureLogs {
					result.FailureLogs = append(result.FailureLogs, run.Outcome.String())
				}
			}

			totalDuration += run.Duration
			if result.TotalRuns == 1 || run.Duration < result.MinDuration {
				result.MinDuration = run.Duration
			}
			result.MaxDuration = max(result.MaxDuration, run.Duration)
		}

		if executed := result.Passes + result.Failures; executed > 0 {
			result.PassRate = float64(result.Passes) / float64(executed) * 100
		}
		if result.TotalRuns > 0 {
			result.AvgDuration = totalDuration / time.Duration(result.TotalRuns)
		}

		switch {
		case result.Failures == 0:
			result.Recommendation = RecommendationStable
		case result.Passes == 0:
			result.Recommendation = RecommendationBroken
		default:
			result.Recommendation = RecommendationFlaky
		}
		out.Tests = append(out.Tests, result)
	}
	return out
}

// SaveStabilityReport writes the report as JSON into outputDir
func SaveStabilityReport(report *StabilityReport, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal stability report: %w", err)
	}
	path := filepath.Join(outputDir, "stability-report.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write stability report: %w", err)
	}
	return path, nil
}
