package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObserveRun(true, time.Second)
	m.ObserveRun(false, 2*time.Second)
	m.TrackingFetch(true)
	m.CandidatesFound(3)
	m.CandidatesFound(0)
	m.AlertSent("candidates_found")
	m.Grant("timeout")
	m.SchedulingDenied()

	out := scrape(t, m)
	require.Contains(t, out, `returnbox_sync_runs_total{result="success"} 1`)
	require.Contains(t, out, `returnbox_sync_runs_total{result="failure"} 1`)
	require.Contains(t, out, `returnbox_tracking_fetches_total{result="success"} 1`)
	require.Contains(t, out, `returnbox_candidates_found_total 3`)
	require.Contains(t, out, `returnbox_alerts_sent_total{type="candidates_found"} 1`)
	require.Contains(t, out, `returnbox_grants_total{outcome="timeout"} 1`)
	require.Contains(t, out, `returnbox_scheduling_denied_total 1`)
	require.Contains(t, out, `returnbox_sync_run_duration_seconds_count 2`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveRun(true, time.Second)
		m.TrackingFetch(false)
		m.LateResult()
		m.Grant("success")
	})
	require.Nil(t, m.Registry())
}
