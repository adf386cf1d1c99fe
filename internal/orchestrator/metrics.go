package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contentd/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/contentd/internal/orchestrator"

var (
	// StrategyAttempts counts strategy attempts.
	// Labels: strategy, outcome (success, validation, execution, panic)
	StrategyAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentd",
			Subsystem: "strategy",
			Name:      "attempts_total",
			Help:      "Total number of publishing strategy attempts by outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// StrategyDuration tracks attempt wall time.
	StrategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contentd",
			Subsystem: "strategy",
			Name:      "duration_seconds",
			Help:      "Duration of publishing strategy attempts in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"strategy"},
	)

	// StrategyFallbacks counts substitutions.
	// Labels: from, to
	StrategyFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentd",
			Subsystem: "strategy",
			Name:      "fallbacks_total",
			Help:      "Total number of fallback substitutions between strategies",
		},
		[]string{"from", "to"},
	)
)

// instruments are the OTel counterparts, bound to the orchestrator's meter.
type instruments struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(meter metric.Meter, logger *logging.Logger) instruments {
	var (
		ins instruments
		err error
	)
	ins.attempts, err = meter.Int64Counter(
		"contentd.orchestrator.attempts",
		metric.WithDescription("Publishing strategy attempts labeled by strategy and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Underlying().Warn("failed to create attempts counter", zap.Error(err))
	}
	ins.duration, err = meter.Float64Histogram(
		"contentd.orchestrator.attempt.duration",
		metric.WithDescription("Publishing strategy attempt duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Underlying().Warn("failed to create duration histogram", zap.Error(err))
	}
	return ins
}
