package ratelimit

import (
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics expõe contadores Prometheus do controle de admissão.
//
// Cardinalidade controlada: labels só com valores de domínio fechado
// (resultado, id de regra configurada), nunca IP/usuário.
type Metrics struct {
	decisions  *prometheus.CounterVec
	violations *prometheus.CounterVec
	degraded   prometheus.Gauge
	duration   prometheus.Histogram
}

// NewMetrics registra os coletores no registry padrão do processo.
// Chamar uma vez, no wiring do binário.
func NewMetrics() *Metrics {
	return &Metrics{
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_decisions_total",
				Help: "Total of admission decisions by result",
			},
			[]string{"result", "degraded"},
		),

		violations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_violations_total",
				Help: "Total of quota violations by rule",
			},
			[]string{"rule"},
		),

		degraded: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "admission_degraded",
				Help: "1 when decisions are being produced without the shared store",
			},
		),

		duration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "admission_evaluate_duration_seconds",
				Help:    "Latency of a full admission evaluation",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
	}
}

// ObserveDecision registra uma decisão. Seguro em ponteiro nil.
func (m *Metrics) ObserveDecision(dec domain.Decision, d time.Duration) {
	if m == nil {
		return
	}

	result := "allowed"
	if !dec.Allowed {
		result = "rejected"
	}
	degraded := "false"
	if dec.Degraded {
		degraded = "true"
	}

	m.decisions.WithLabelValues(result, degraded).Inc()
	if dec.ViolatedRuleID != "" {
		m.violations.WithLabelValues(dec.ViolatedRuleID).Inc()
	}
	if dec.Degraded {
		m.degraded.Set(1)
	} else {
		m.degraded.Set(0)
	}
	m.duration.Observe(d.Seconds())
}
