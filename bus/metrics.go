package bus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus gauges/histograms/counters for
// engine operation — namespaced "flowrun_" (adapted from the teacher's
// graph.PrometheusMetrics; retries_total is kept even though retry
// actuation is a non-goal, since the counter documents attempts that
// would occur if/when it is, matching spec.md's "retryConfig... reserved
// for future use").
type PrometheusMetrics struct {
	queueDepth     prometheus.Gauge
	inflightSteps  prometheus.Gauge
	stepLatency    *prometheus.HistogramVec
	suspendTotal   *prometheus.CounterVec
	resumeTotal    *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	backpressure   *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers every metric with registry
// (prometheus.DefaultRegisterer when nil).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowrun",
			Name:      "queue_depth",
			Help:      "Number of entries pending in the primary scheduling queue",
		}),
		inflightSteps: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowrun",
			Name:      "inflight_steps",
			Help:      "Number of steps currently executing across all entries",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowrun",
			Name:      "step_latency_ms",
			Help:      "Step execute duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"run_id", "step_id", "status"}),
		suspendTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowrun",
			Name:      "suspend_total",
			Help:      "Number of steps that suspended",
		}, []string{"run_id", "step_id"}),
		resumeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowrun",
			Name:      "resume_total",
			Help:      "Number of resume calls",
		}, []string{"run_id"}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowrun",
			Name:      "retries_total",
			Help:      "Reserved counter for retry attempts; not incremented while retry is unactuated",
		}, []string{"run_id", "step_id"}),
		backpressure: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowrun",
			Name:      "backpressure_events_total",
			Help:      "Queue saturation events where dispatch was throttled",
		}, []string{"run_id", "reason"}),
	}
}

func (pm *PrometheusMetrics) RecordStepLatency(runID, stepID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(runID, stepID, status).Observe(float64(latency.Milliseconds()))
}

func (pm *PrometheusMetrics) IncrementSuspend(runID, stepID string) {
	if !pm.isEnabled() {
		return
	}
	pm.suspendTotal.WithLabelValues(runID, stepID).Inc()
}

func (pm *PrometheusMetrics) IncrementResume(runID string) {
	if !pm.isEnabled() {
		return
	}
	pm.resumeTotal.WithLabelValues(runID).Inc()
}

func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if !pm.isEnabled() {
		return
	}
	pm.queueDepth.Set(float64(depth))
}

func (pm *PrometheusMetrics) UpdateInflightSteps(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightSteps.Set(float64(count))
}

func (pm *PrometheusMetrics) IncrementBackpressure(runID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.backpressure.WithLabelValues(runID, reason).Inc()
}

func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}
