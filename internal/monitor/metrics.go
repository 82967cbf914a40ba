package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passTotal          *prometheus.CounterVec
	passDuration       *prometheus.HistogramVec
	outcomeTotal       *prometheus.CounterVec
	credentialFetches  *prometheus.CounterVec
	fetchKeyMismatches prometheus.Counter
	reverseFlowActive  prometheus.Gauge

	metricsOnce       sync.Once
	metricsRegistered bool
)

// Metrics records dispatch activity. Metrics are lazily registered; until
// InitMetrics runs, every method is a no-op.
type Metrics struct{}

// NewMetrics creates a Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// InitMetrics registers all Prometheus metrics. Call once at startup when
// the metrics endpoint is enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		passTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credbroker_dispatch_pass_total",
				Help: "Total number of dispatch passes by trigger",
			},
			[]string{"trigger"},
		)

		passDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credbroker_dispatch_pass_duration_seconds",
				Help:    "Duration of dispatch passes by trigger",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		)

		outcomeTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credbroker_outcome_total",
				Help: "Total number of per-mapping outcomes",
			},
			[]string{"plugin", "kind", "outcome"},
		)

		credentialFetches = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credbroker_credential_fetch_total",
				Help: "Total number of vault credential fetches",
			},
			[]string{"result"},
		)

		fetchKeyMismatches = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credbroker_fetch_key_mismatch_total",
				Help: "Total number of accounts observed with mismatched fetch keys",
			},
		)

		reverseFlowActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "credbroker_reverse_flow_active",
				Help: "Whether the reverse-flow poller is running (1=active)",
			},
		)

		metricsRegistered = true
	})
}

// RecordPass records one dispatch pass by trigger name.
func (m *Metrics) RecordPass(trigger string) {
	if !metricsRegistered || passTotal == nil {
		return
	}
	passTotal.WithLabelValues(trigger).Inc()
}

// ObservePassDuration records how long a dispatch pass took.
func (m *Metrics) ObservePassDuration(trigger string, d time.Duration) {
	if !metricsRegistered || passDuration == nil {
		return
	}
	passDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// RecordOutcome records one per-mapping outcome.
func (m *Metrics) RecordOutcome(plugin, kind string, outcome Outcome) {
	if !metricsRegistered || outcomeTotal == nil {
		return
	}
	outcomeTotal.WithLabelValues(plugin, kind, string(outcome)).Inc()
}

// RecordFetch records one vault fetch attempt.
func (m *Metrics) RecordFetch(result string) {
	if !metricsRegistered || credentialFetches == nil {
		return
	}
	credentialFetches.WithLabelValues(result).Inc()
}

// RecordFetchKeyMismatch records one mismatched-fetch-key anomaly.
func (m *Metrics) RecordFetchKeyMismatch() {
	if !metricsRegistered || fetchKeyMismatches == nil {
		return
	}
	fetchKeyMismatches.Inc()
}

// SetReverseFlowActive reflects the poller state.
func (m *Metrics) SetReverseFlowActive(active bool) {
	if !metricsRegistered || reverseFlowActive == nil {
		return
	}
	value := 0.0
	if active {
		value = 1.0
	}
	reverseFlowActive.Set(value)
}
