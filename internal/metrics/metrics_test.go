package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitRegistersCollectorsAndScrapes(t *testing.T) {
	m := Init("corert_test")
	if m != Active() {
		t.Fatal("Active() should return the instance Init just built")
	}

	m.RecordPoolExhausted("memory")
	m.RecordTaskCompleted("0")
	m.ObserveIOQueueDelay("READ", 1.5)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "corert_test_pool_exhausted_total") {
		t.Fatal("scrape output missing pool_exhausted_total series")
	}
	if !strings.Contains(body, "corert_test_tasks_completed_total") {
		t.Fatal("scrape output missing tasks_completed_total series")
	}
}

func TestNilMetricsRecordersAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordPoolExhausted("memory")
	m.RecordTaskCompleted("0")
	m.ObserveIOQueueDelay("READ", 1)
	m.SetIORequestsLive("4", 2)
}
