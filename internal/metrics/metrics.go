package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry                 *prometheus.Registry
	httpRequests             *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	routeComputationsTotal   prometheus.Counter
	routeComputationDuration prometheus.Histogram
	suggestionsReturned      prometheus.Histogram
	inventoryRefreshesTotal  prometheus.Counter
	inventoryDevices         prometheus.Gauge
}

// New creates a fresh Metrics registry with HTTP and planner metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planner",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by planner-go",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "planner",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by planner-go",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	routeComputationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "planner",
		Name:      "route_computations_total",
		Help:      "Total number of maintenance routes computed",
	})

	routeComputationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "planner",
		Name:      "route_computation_duration_seconds",
		Help:      "Duration of route optimization runs",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	})

	suggestionsReturned := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "planner",
		Name:      "suggestions_returned",
		Help:      "Number of opportunistic stops returned per route computation",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})

	inventoryRefreshesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "planner",
		Name:      "inventory_refreshes_total",
		Help:      "Total number of device inventory refreshes",
	})

	inventoryDevices := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "planner",
		Name:      "inventory_devices",
		Help:      "Devices in the current inventory snapshot",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		routeComputationsTotal,
		routeComputationDuration,
		suggestionsReturned,
		inventoryRefreshesTotal,
		inventoryDevices,
	)

	return &Metrics{
		registry:                 registry,
		httpRequests:             httpRequests,
		httpRequestDuration:      httpRequestDuration,
		routeComputationsTotal:   routeComputationsTotal,
		routeComputationDuration: routeComputationDuration,
		suggestionsReturned:      suggestionsReturned,
		inventoryRefreshesTotal:  inventoryRefreshesTotal,
		inventoryDevices:         inventoryDevices,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// IncRouteComputation increments the route computation counter.
func (m *Metrics) IncRouteComputation() {
	if m == nil {
		return
	}
	m.routeComputationsTotal.Inc()
}

// ObserveRouteComputationDuration observes one optimization run.
func (m *Metrics) ObserveRouteComputationDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.routeComputationDuration.Observe(duration.Seconds())
}

// ObserveSuggestionCount records how many opportunistic stops a
// computation produced.
func (m *Metrics) ObserveSuggestionCount(count int) {
	if m == nil {
		return
	}
	m.suggestionsReturned.Observe(float64(count))
}

// IncInventoryRefresh increments the inventory refresh counter.
func (m *Metrics) IncInventoryRefresh() {
	if m == nil {
		return
	}
	m.inventoryRefreshesTotal.Inc()
}

// SetInventoryDevices records the size of the current inventory snapshot.
func (m *Metrics) SetInventoryDevices(count int) {
	if m == nil {
		return
	}
	m.inventoryDevices.Set(float64(count))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
