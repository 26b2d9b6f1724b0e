package proving

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "proof_service"

type Metrics struct {
	proofs        *prometheus.CounterVec
	proofDuration *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	keyLoads      *prometheus.CounterVec
	keyLoadTime   prometheus.Histogram
	inflight      prometheus.Gauge
}

// NewMetrics registers the service metrics with reg. A nil reg keeps them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		proofs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proofs_total",
			Help:      "Proof requests by circuit and outcome",
		}, []string{"circuit", "outcome"}),
		proofDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "proof_duration_seconds",
			Help:      "Time spent computing proofs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"circuit"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "verifications_total",
			Help:      "Verification requests by outcome",
		}, []string{"outcome"}),
		keyLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "key_loads_total",
			Help:      "Proving key loads by outcome",
		}, []string{"outcome"}),
		keyLoadTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "key_load_duration_seconds",
			Help:      "Time spent reading and parsing proving keys",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "proofs_in_flight",
			Help:      "Proofs currently being computed",
		}),
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}

func verifyOutcome(ok bool, err error) string {
	switch {
	case err != nil:
		return outcome(err)
	case ok:
		return "valid"
	default:
		return "invalid"
	}
}
