package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-isolator/types"
)

const (
	MetricsNamespace = "op_isolator"
)

var (
	Debug                bool = false
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_outcomes_total",
		Help:      "Count of finished tests by outcome",
	}, []string{
		"run_id",
		"name",
		"outcome",
	})

	testDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Wall time of each test process",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{
		"outcome",
	})

	runningTests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "running_tests",
		Help:      "Number of test processes currently running",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of suite runs",
	}, []string{
		"run_id",
		"result",
	})

	runTests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests",
		Help:      "Number of tests in a run by outcome",
	}, []string{
		"run_id",
		"outcome",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall clock time of suite runs",
	}, []string{
		"run_id",
	})

	testPassRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "test_pass_rate",
		Help:      "Pass rate of a test across repeated runs",
	}, []string{
		"name",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// ProcessStarted and ProcessFinished track the number of live child processes
func ProcessStarted()  { runningTests.Inc() }
func ProcessFinished() { runningTests.Dec() }

func RecordTestOutcome(runID string, name string, kind types.OutcomeKind, duration time.Duration) {
	if !slices.Contains(types.AllOutcomeKinds, kind) {
		log.Error("RecordTestOutcome - invalid outcome", "outcome", kind)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "test_outcomes_total",
			"run_id", runID,
			"name", name,
			"outcome", kind)
	}
	testOutcomesTotal.WithLabelValues(runID, name, string(kind)).Inc()
	testDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

func RecordRun(runID string, result string, summary types.Summary, wallClock time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	for _, kind := range types.AllOutcomeKinds {
		runTests.WithLabelValues(runID, string(kind)).Set(float64(summary.Count(kind)))
	}
	runDuration.WithLabelValues(runID).Set(wallClock.Seconds())
}

func RecordPassRate(name string, rate float64) {
	testPassRate.WithLabelValues(name).Set(rate)
}
