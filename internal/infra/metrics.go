package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "formularium"

// Metrics は署名処理のPrometheusメトリクス。
type Metrics struct {
	signed   prometheus.Histogram
	rejected *prometheus.CounterVec
	rotated  prometheus.Counter
}

// NewMetrics はメトリクスを reg に登録して返す。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		signed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "submission_signing_duration_seconds",
			Help:      "Time spent building, signing and storing a form submission.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submissions_rejected_total",
			Help:      "Form submissions rejected, by reason.",
		}, []string{"reason"}),
		rotated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signing_key_rotations_total",
			Help:      "Signing key rotations performed by this process.",
		}),
	}
}

func (m *Metrics) SubmissionSigned(d time.Duration) {
	m.signed.Observe(d.Seconds())
}

func (m *Metrics) SubmissionRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SigningKeyRotated() {
	m.rotated.Inc()
}
