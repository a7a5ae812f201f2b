package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Workflow and delivery outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRetry     = "retry"
	OutcomeDropped   = "dropped"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemata",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "schemata",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	workflows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemata",
			Name:      "workflows_total",
			Help:      "Orchestrator workflows by name and outcome.",
		},
		[]string{"workflow", "outcome"},
	)
	workflowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "schemata",
			Name:      "workflow_duration_seconds",
			Help:      "Orchestrator workflow duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow", "outcome"},
	)
	compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemata",
			Name:      "compensations_total",
			Help:      "Compensation sequences by workflow and outcome (completed or failed).",
		},
		[]string{"workflow", "outcome"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemata",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Event delivery attempts by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "schemata",
			Subsystem: "notify",
			Name:      "queue_depth",
			Help:      "Events waiting for delivery.",
		},
	)
)

// RegisterMetrics registers every collector on the default registry.
// Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			workflows, workflowDuration, compensations,
			deliveries, queueDepth,
		)
	})
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordWorkflow records one finished orchestrator workflow.
func RecordWorkflow(workflow string, err error, duration time.Duration) {
	RegisterMetrics()
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	workflows.WithLabelValues(workflow, outcome).Inc()
	workflowDuration.WithLabelValues(workflow, outcome).Observe(duration.Seconds())
}

// RecordCompensation records a compensation sequence; failed is true when
// at least one compensating action did not succeed.
func RecordCompensation(workflow string, failed bool) {
	RegisterMetrics()
	outcome := OutcomeCompleted
	if failed {
		outcome = OutcomeFailed
	}
	compensations.WithLabelValues(workflow, outcome).Inc()
}

// RecordDelivery records one delivery attempt outcome for topic.
func RecordDelivery(topic, outcome string) {
	RegisterMetrics()
	deliveries.WithLabelValues(topic, outcome).Inc()
}

// SetQueueDepth reports the notifier backlog.
func SetQueueDepth(n int) {
	RegisterMetrics()
	queueDepth.Set(float64(n))
}
