package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronosnap_generation_requests_total",
		Help: "Remote generation calls by operation and outcome",
	}, []string{"operation", "outcome"}) // outcome=success|no_output|transport|degraded

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chronosnap_generation_duration_seconds",
		Help:    "Latency of remote generation calls",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"operation"})

	phaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronosnap_phase_transitions_total",
		Help: "Booth state machine transitions",
	}, []string{"from", "to"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chronosnap_active_sessions",
		Help: "Booth sessions currently held in memory",
	})

	captureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronosnap_capture_total",
		Help: "Capture attempts by mode and outcome",
	}, []string{"mode", "outcome"}) // mode=live|upload
)

func RecordGeneration(operation, outcome string, d time.Duration) {
	generationRequests.WithLabelValues(operation, outcome).Inc()
	generationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func RecordTransition(from, to string) {
	phaseTransitions.WithLabelValues(from, to).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

func RecordCapture(mode, outcome string) {
	captureTotal.WithLabelValues(mode, outcome).Inc()
}
