package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "returnbox"

// Metrics holds every collector of the worker on its own registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	syncRuns         *prometheus.CounterVec
	syncDuration     prometheus.Histogram
	trackingFetches  *prometheus.CounterVec
	candidatesFound  prometheus.Counter
	alertsSent       *prometheus.CounterVec
	lateResults      prometheus.Counter
	grants           *prometheus.CounterVec
	schedulingDenied prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_runs_total",
			Help: "Sync runs by result.",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sync_run_duration_seconds",
			Help:    "Wall time of a sync run.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}),
		trackingFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tracking_fetches_total",
			Help: "Tracking refreshes by result.",
		}, []string{"result"}),
		candidatesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "candidates_found_total",
			Help: "New candidate returns surfaced from the inbox.",
		}),
		alertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_sent_total",
			Help: "Alerts handed to delivery by type.",
		}, []string{"type"}),
		lateResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "late_results_dropped_total",
			Help: "Subtask writes dropped because the run was already sealed.",
		}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "grants_total",
			Help: "Execution grants by completion outcome.",
		}, []string{"outcome"}),
		schedulingDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "scheduling_denied_total",
			Help: "Scheduling requests refused by the host.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncRuns, m.syncDuration, m.trackingFetches, m.candidatesFound,
		m.alertsSent, m.lateResults, m.grants, m.schedulingDenied,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRun(success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result(success)).Inc()
	m.syncDuration.Observe(d.Seconds())
}

func (m *Metrics) TrackingFetch(success bool) {
	if m == nil {
		return
	}
	m.trackingFetches.WithLabelValues(result(success)).Inc()
}

func (m *Metrics) CandidatesFound(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.candidatesFound.Add(float64(n))
}

func (m *Metrics) AlertSent(alertType string) {
	if m == nil {
		return
	}
	m.alertsSent.WithLabelValues(alertType).Inc()
}

func (m *Metrics) LateResult() {
	if m == nil {
		return
	}
	m.lateResults.Inc()
}

// Grant counts a completed grant. outcome is one of success, failure, timeout, refused.
func (m *Metrics) Grant(outcome string) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SchedulingDenied() {
	if m == nil {
		return
	}
	m.schedulingDenied.Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
