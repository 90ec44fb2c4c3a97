package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the ingest and planning paths.
// Instruments register against the provided Registerer so tests can use an
// isolated registry.
type Metrics struct {
	attemptsIngested *prometheus.CounterVec
	attemptScores    *prometheus.HistogramVec
	resolutions      *prometheus.CounterVec
	plansComputed    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers all instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attemptsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gentuner_attempts_ingested_total",
				Help: "Generation attempts ingested, by component type and outcome.",
			},
			[]string{"component_type", "outcome"},
		),
		attemptScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gentuner_attempt_composite_score",
				Help:    "Composite score distribution of ingested attempts.",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"component_type"},
		),
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gentuner_recommendation_resolutions_total",
				Help: "Recommendation lookups, by the scope level that answered.",
			},
			[]string{"level"},
		),
		plansComputed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gentuner_plans_computed_total",
				Help: "Generation plans computed, by component type and parameter source.",
			},
			[]string{"component_type", "source"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gentuner_http_request_duration_seconds",
				Help:    "HTTP request latency, by route, method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
	}
}

// RecordAttempt counts one ingested attempt and observes its composite score.
func (m *Metrics) RecordAttempt(componentType string, success bool, score float64) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.attemptsIngested.WithLabelValues(componentType, outcome).Inc()
	m.attemptScores.WithLabelValues(componentType).Observe(score)
}

// RecordResolution counts a recommendation lookup by the scope level that
// served it: item, component_type, global, or none.
func (m *Metrics) RecordResolution(level string) {
	m.resolutions.WithLabelValues(level).Inc()
}

// RecordPlan counts a computed generation plan. Source is "learned" when the
// plan came from mined history and "defaults" otherwise.
func (m *Metrics) RecordPlan(componentType, source string) {
	m.plansComputed.WithLabelValues(componentType, source).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
