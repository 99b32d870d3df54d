// Package metrics exposes labnet's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatch metrics
	DispatchCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labnet_dispatch_calls_total",
			Help: "Module function invocations by module, function and result kind",
		},
		[]string{"module", "function", "result"},
	)

	DispatchCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labnet_dispatch_call_duration_seconds",
			Help:    "Module function invocation time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"module"},
	)

	DispatchLockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "labnet_dispatch_lock_wait_seconds",
			Help:    "Time spent waiting for the global dispatch guard",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DNS metrics
	ZoneReloadPolls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "labnet_zone_reload_polls",
			Help:    "Live-serial polls needed before a reloaded zone converged",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	ZoneConvergenceFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labnet_zone_convergence_failures_total",
			Help: "Reloads whose live serial never matched the written serial",
		},
	)

	// Allocator metrics
	NetworksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labnet_networks_total",
			Help: "Allocated networks",
		},
	)

	// Reconciler metrics
	ReconcileActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labnet_reconcile_actions_total",
			Help: "Lifecycle calls issued by restore_state by module, action and result",
		},
		[]string{"module", "action", "result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labnet_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labnet_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(DispatchCallsTotal)
	prometheus.MustRegister(DispatchCallDuration)
	prometheus.MustRegister(DispatchLockWait)
	prometheus.MustRegister(ZoneReloadPolls)
	prometheus.MustRegister(ZoneConvergenceFailures)
	prometheus.MustRegister(NetworksTotal)
	prometheus.MustRegister(ReconcileActions)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for a histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() Timer {
	return Timer{start: time.Now()}
}

// ObserveDuration records the elapsed seconds on o.
func (t Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(time.Since(t.start).Seconds())
}
