package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	tasksTotal       *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a Prometheus-based recorder. Metrics are
// registered with the default registry; construct it at most once per
// process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		tasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_tasks_total",
				Help: "Total number of processed subtasks by terminal status",
			},
			[]string{"status"},
		),
		retriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_retries_total",
				Help: "Total number of retry attempts by operation",
			},
			[]string{"operation"},
		),
		transitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_state_transitions_total",
				Help: "Total number of pipeline state machine transitions",
			},
			[]string{"from", "to"},
		),
		taskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_task_duration_seconds",
				Help:    "Duration of subtask executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
	}
}

func (r *PrometheusRecorder) ObserveTask(taskID, status string, duration time.Duration) {
	r.tasksTotal.WithLabelValues(status).Inc()
	r.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ObserveRetry(operation string) {
	r.retriesTotal.WithLabelValues(operation).Inc()
}

func (r *PrometheusRecorder) ObserveStateTransition(from, to string) {
	r.transitionsTotal.WithLabelValues(from, to).Inc()
}
