package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var driverLabel atomic.Value

func init() {
	driverLabel.Store("memory")
}

// SetDriver labels store metrics with the active storage driver.
func SetDriver(s string) {
	if s == "" {
		s = "memory"
	}
	driverLabel.Store(s)
}

func getDriver() string {
	if v := driverLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "memory"
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	storeOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_op_duration_seconds",
			Help:    "Latency of storage operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op", "driver"},
	)

	storeOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_op_total",
			Help: "Storage operations by outcome.",
		},
		[]string{"op", "driver", "result"},
	)

	zoneResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zone_resolutions_total",
			Help: "Location resolutions by coverage status.",
		},
		[]string{"coverage"},
	)

	gridCellsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grid_cells_generated_total",
			Help: "Hexagonal grid cells inserted by grid generation.",
		},
	)

	gridEditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grid_edits_total",
			Help: "Grid edit batches by outcome.",
		},
		[]string{"outcome"},
	)

	zoneEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zone_events_total",
			Help: "Zone change events by outcome (queued, dropped, failed).",
		},
		[]string{"outcome"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	d := getDriver()
	res := "ok"
	if err != nil {
		res = "error"
	}
	storeOpTotal.WithLabelValues(op, d, res).Inc()
	storeOpDurationSeconds.WithLabelValues(op, d).Observe(durationSeconds)
}

func IncResolution(coverage string) {
	zoneResolutionsTotal.WithLabelValues(coverage).Inc()
}

func AddGridCells(n int) {
	if n > 0 {
		gridCellsGeneratedTotal.Add(float64(n))
	}
}

func IncGridEdit(outcome string) {
	gridEditsTotal.WithLabelValues(outcome).Inc()
}

func IncZoneEvent(outcome string) {
	zoneEventsTotal.WithLabelValues(outcome).Inc()
}
