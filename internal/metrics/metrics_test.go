package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_nilMetrics(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if got := rr.Body.String(); !strings.Contains(got, "metrics unavailable") {
		t.Fatalf("expected body to mention metrics unavailable, got %q", got)
	}
}

func TestHandler_exposesRegisteredMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest(http.MethodGet, "/readyz", http.StatusOK, 12*time.Millisecond)
	m.IncRouteComputation()
	m.ObserveRouteComputationDuration(3 * time.Millisecond)
	m.ObserveSuggestionCount(4)
	m.IncInventoryRefresh()
	m.SetInventoryDevices(17)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	if !strings.Contains(body, "planner_http_requests_total{method=\"GET\",path=\"/readyz\",status=\"200\"} 1") {
		t.Fatalf("expected labeled request counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "planner_route_computations_total 1") {
		t.Fatalf("expected route computation counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "planner_route_computation_duration_seconds_count 1") {
		t.Fatalf("expected duration histogram to have one observation; body=%s", body)
	}
	if !strings.Contains(body, "planner_suggestions_returned_count 1") {
		t.Fatalf("expected suggestions histogram to have one observation; body=%s", body)
	}
	if !strings.Contains(body, "planner_inventory_refreshes_total 1") {
		t.Fatalf("expected inventory refresh counter to be incremented; body=%s", body)
	}
	if !strings.Contains(body, "planner_inventory_devices 17") {
		t.Fatalf("expected inventory gauge to be set; body=%s", body)
	}
}

func TestNilMetricsObserversAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.IncRouteComputation()
	m.ObserveRouteComputationDuration(time.Millisecond)
	m.ObserveSuggestionCount(1)
	m.IncInventoryRefresh()
	m.SetInventoryDevices(1)
}
