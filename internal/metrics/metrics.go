package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OptimizerRuns counts optimization runs by component, algorithm, and termination
	OptimizerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Optimization runs by component, algorithm, and termination."},
		[]string{"component", "algorithm", "termination"},
	)
	// OptimizerDuration tracks run wall time in seconds per component and algorithm
	OptimizerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimizer_run_duration_seconds", Help: "Optimization run duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}},
		[]string{"component", "algorithm"},
	)
	// OptimizerIterations records iterations/generations consumed per run
	OptimizerIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimizer_run_iterations", Help: "Iterations or generations consumed per run.", Buckets: prometheus.ExponentialBuckets(10, 4, 8)},
		[]string{"component", "algorithm"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OptimizerRuns)
		Registry.MustRegister(OptimizerDuration)
		Registry.MustRegister(OptimizerIterations)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
