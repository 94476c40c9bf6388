package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ReadyQueueDepth   prometheus.Gauge
	WaitingJobs       prometheus.Gauge
	LiveJobs          prometheus.Gauge
	Transitions       *prometheus.CounterVec
	TransitionFaults  *prometheus.CounterVec
	StaleCallbacks    *prometheus.CounterVec
	UpstreamErrors    *prometheus.CounterVec
	MentionsPolled    *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	TransitionLatency prometheus.Histogram

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ReadyQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_queue_depth",
			Help:      "Task ids currently queued for the worker.",
		}),
		WaitingJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiting_jobs",
			Help:      "Jobs parked on an external response.",
		}),
		LiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_jobs",
			Help:      "Job chains held in the snapshot table.",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Completed transition invocations by job kind and outcome status.",
		}, []string{"kind", "status"}),
		TransitionFaults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_faults_total",
			Help:      "Transitions converted to dead snapshots by job kind.",
		}, []string{"kind"}),
		StaleCallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_callbacks_total",
			Help:      "Resume or fail calls ignored because the correlation key was unknown.",
		}, []string{"op"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream call failures by upstream and code.",
		}, []string{"upstream", "code"}),
		MentionsPolled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mentions_polled_total",
			Help:      "Mentions seen by the poller by outcome.",
		}, []string{"outcome"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		TransitionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_latency_ms",
			Help:      "Duration of a single transition invocation in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) ObserveTransitionLatency(d time.Duration) {
	m.TransitionLatency.Observe(float64(d.Milliseconds()))
}

// ObserveStage records one pipeline stage duration in the rolling window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stages.Observe(stage, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveStageIndicator(name string) {
	m.stages.ObserveIndicator(name)
}

// SnapshotStages reports window quantiles for the status endpoint.
func (m *Metrics) SnapshotStages() LatencyReport {
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
