package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rzzdr/localvol-pde/pkg/utils/logger"
)

var (
	// Metrics for PDE solves
	solvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pde_solves_total",
		Help: "The total number of PDE solves by solver and outcome",
	}, []string{"solver", "outcome"})

	solveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pde_solve_duration_seconds",
		Help:    "The time taken by a single PDE solve",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"solver"})

	sorIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pde_sor_iterations",
		Help:    "Iterations needed by SOR line solves inside the ADI scheme",
		Buckets: prometheus.ExponentialBuckets(1, 2, 11), // 1 to 1024
	})

	// Metrics for Greek jobs
	impliedVolFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pde_implied_vol_failures_total",
		Help: "Grid points skipped because implied volatility inversion failed",
	})

	greekJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pde_greek_jobs_total",
		Help: "The total number of Greek orchestration jobs",
	}, []string{"job"})

	greekJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pde_greek_job_duration_seconds",
		Help:    "The time taken by a Greek orchestration job",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"job"})
)

// PrometheusServer is a server that exposes Prometheus metrics
type PrometheusServer struct {
	server *http.Server
	log    *logger.Logger
}

// NewPrometheusServer creates a new Prometheus metrics server
func NewPrometheusServer(port int) *PrometheusServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &PrometheusServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		log: logger.GetLogger("metrics.prometheus"),
	}
}

// Start starts the Prometheus metrics server
func (p *PrometheusServer) Start() error {
	p.log.Infof("Starting Prometheus metrics server on %s", p.server.Addr)
	return p.server.ListenAndServe()
}

// Stop stops the Prometheus metrics server
func (p *PrometheusServer) Stop() error {
	p.log.Info("Stopping Prometheus metrics server")
	return p.server.Close()
}

// RecordSolve records a finished PDE solve
func RecordSolve(solver string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	solvesTotal.WithLabelValues(solver, outcome).Inc()
	solveDuration.WithLabelValues(solver).Observe(duration.Seconds())
}

// RecordSORIterations records the iteration count of one SOR line solve
func RecordSORIterations(iterations int) {
	sorIterations.Observe(float64(iterations))
}

// RecordImpliedVolFailure records a grid point whose implied volatility
// could not be recovered
func RecordImpliedVolFailure() {
	impliedVolFailures.Inc()
}

// RecordGreekJob records a finished Greek orchestration job
func RecordGreekJob(job string, duration time.Duration) {
	greekJobsTotal.WithLabelValues(job).Inc()
	greekJobDuration.WithLabelValues(job).Observe(duration.Seconds())
}
