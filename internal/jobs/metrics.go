package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and ledger outcomes.
type Metrics struct {
	runs         *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	ledgerStatus *prometheus.CounterVec
	syncs        *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ObserveLedger counts a recomputed ledger row by commodity and status.
func (m *Metrics) ObserveLedger(commodity, status string) {
	if m == nil {
		return
	}
	m.ledgerStatus.WithLabelValues(commodity, status).Inc()
}

// ObserveSync counts POS sync attempts by outcome status.
func (m *Metrics) ObserveSync(status string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(status).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftledger_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftledger_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shiftledger_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	ledgerStatus := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftledger_ledger_recomputes_total",
		Help: "Ledger rows recomputed grouped by commodity and resulting status.",
	}, []string{"commodity", "status"})
	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftledger_pos_syncs_total",
		Help: "POS sync attempts grouped by outcome.",
	}, []string{"status"})
	registerer.MustRegister(runs, failures, duration, ledgerStatus, syncs)
	return &Metrics{runs: runs, failures: failures, duration: duration, ledgerStatus: ledgerStatus, syncs: syncs}
}
