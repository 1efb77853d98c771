// Package metrics collects Prometheus metrics for correlations and solves.
// A run has no HTTP endpoint, so metrics are written to a node-exporter
// textfile or pushed to a Pushgateway when the run finishes.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "ls_tdoa"

// Recorder owns a private registry so concurrent runs never collide on the
// global default registry. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	correlations    *prometheus.CounterVec
	correlationTime *prometheus.HistogramVec
	confidence      *prometheus.GaugeVec
	solves          *prometheus.CounterVec
	solveIterations *prometheus.HistogramVec
	positionError   *prometheus.GaugeVec
	velocityError   *prometheus.GaugeVec
	trialsCompleted prometheus.Counter
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		correlations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlations_total",
			Help:      "Cross-ambiguity surfaces computed.",
		}, []string{"algorithm"}),
		correlationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "correlation_duration_seconds",
			Help:      "Time to compute one cross-ambiguity surface.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"algorithm"}),
		confidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "correlation_confidence_ratio",
			Help:      "Peak to median magnitude of the latest surface per receiver.",
		}, []string{"receiver"}),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Geolocation solves by mode and termination status.",
		}, []string{"mode", "status"}),
		solveIterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_iterations",
			Help:      "Optimizer iterations per solve.",
			Buckets:   prometheus.LinearBuckets(0, 5, 12),
		}, []string{"mode"}),
		positionError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position_error_meters",
			Help:      "Distance from the estimate to the true emitter position.",
		}, []string{"source"}),
		velocityError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "velocity_error_meters_per_second",
			Help:      "Magnitude of the velocity estimate error.",
		}, []string{"source"}),
		trialsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "montecarlo_trials_total",
			Help:      "Monte Carlo trials completed.",
		}),
	}

	r.registry.MustRegister(
		r.correlations,
		r.correlationTime,
		r.confidence,
		r.solves,
		r.solveIterations,
		r.positionError,
		r.velocityError,
		r.trialsCompleted,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveCorrelation records one surface for the given receiver index.
func (r *Recorder) ObserveCorrelation(algorithm string, receiver int, elapsed time.Duration, confidence float64) {
	if r == nil {
		return
	}
	r.correlations.WithLabelValues(algorithm).Inc()
	r.correlationTime.WithLabelValues(algorithm).Observe(elapsed.Seconds())
	r.confidence.WithLabelValues(strconv.Itoa(receiver)).Set(confidence)
}

// ObserveSolve records a finished solve.
func (r *Recorder) ObserveSolve(mode, status string, iterations int) {
	if r == nil {
		return
	}
	r.solves.WithLabelValues(mode, status).Inc()
	r.solveIterations.WithLabelValues(mode).Observe(float64(iterations))
}

// SetErrors records the latest position and velocity errors for source
// ("measured" or "truth").
func (r *Recorder) SetErrors(source string, position, velocity float64) {
	if r == nil {
		return
	}
	r.positionError.WithLabelValues(source).Set(position)
	r.velocityError.WithLabelValues(source).Set(velocity)
}

// TrialDone counts a finished Monte Carlo trial.
func (r *Recorder) TrialDone() {
	if r == nil {
		return
	}
	r.trialsCompleted.Inc()
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

// Push sends all metrics to a Pushgateway under job.
func (r *Recorder) Push(url, job string) error {
	if r == nil {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.registry).Push(); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
