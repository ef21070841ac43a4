package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/me/arc/pkg/model"
)

func TestCollector_Results(t *testing.T) {
	c := New()
	c.ObserveResult(model.StatusOK)
	c.ObserveResult(model.StatusOK)
	c.ObserveResult(model.StatusRerun)

	if got := testutil.ToFloat64(c.results.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.results.WithLabelValues("rerun")); got != 1 {
		t.Errorf("rerun = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.results.WithLabelValues("fatal")); got != 0 {
		t.Errorf("fatal = %v, want 0", got)
	}
}

func TestCollector_Gauges(t *testing.T) {
	c := New()
	c.SetPool(4)
	c.SetQueues(7, 2, 3)
	c.ObserveRespawn()

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"workers", testutil.ToFloat64(c.workers), 4},
		{"jobs_queued", testutil.ToFloat64(c.jobsQueued), 7},
		{"results_queued", testutil.ToFloat64(c.resultsQueue), 2},
		{"workers_idle", testutil.ToFloat64(c.idleWorkers), 3},
		{"respawns", testutil.ToFloat64(c.respawns), 1},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveResult(model.StatusEmpty)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{`arc_status_records_total{status="empty"} 1`, "arc_workers_idle", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.ObserveResult(model.StatusOK)
	c.ObserveRespawn()
	c.SetPool(1)
	c.SetQueues(1, 1, 1)
	if c.Registry() != nil {
		t.Error("nil collector returned a registry")
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil collector handler status = %d, want 404", rec.Code)
	}
}
