// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the worker collectors. Every series is partitioned by the task
// type and the kind of record it handles (document kind, key table).
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	abandoned *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against registerer, or the default
// Prometheus registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker times one task execution.
type Tracker struct {
	metrics *Metrics
	job     string
	kind    string
	start   time.Time
}

// Track starts timing a run of job handling kind. An empty kind is reported
// as "none".
func (m *Metrics) Track(job, kind string) *Tracker {
	if kind == "" {
		kind = "none"
	}
	return &Tracker{metrics: m, job: job, kind: kind, start: time.Now()}
}

// Abandon counts a run the worker will not retry, whose failure was handed
// back to the owning record.
func (t *Tracker) Abandon() {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.abandoned.WithLabelValues(t.job, t.kind).Inc()
}

// End records duration and outcome, returning err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job, t.kind).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, t.kind, status).Inc()
	t.metrics.duration.WithLabelValues(t.job, t.kind).Observe(time.Since(t.start).Seconds())
	return err
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_jobs_total",
			Help: "Worker task executions by task type, kind and status.",
		}, []string{"job", "kind", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_jobs_failures_total",
			Help: "Failed worker task executions, retried or not.",
		}, []string{"job", "kind"}),
		abandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_jobs_abandoned_total",
			Help: "Tasks given up on and written back as failed to their record.",
		}, []string{"job", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_job_duration_seconds",
			Help:    "Worker task execution time in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"job", "kind"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.abandoned, m.duration)
	return m
}
