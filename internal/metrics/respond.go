package metrics

import "github.com/prometheus/client_golang/prometheus"

// Response pipeline Prometheus metrics.
var (
	RespondRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botgate",
			Name:      "respond_requests_total",
			Help:      "Total number of respond requests by outcome",
		},
		[]string{"command", "outcome"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botgate",
			Name:      "provider_requests_total",
			Help:      "Total number of external provider calls",
		},
		[]string{"provider", "model", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "botgate",
			Name:      "provider_request_duration_seconds",
			Help:      "External provider call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botgate",
			Name:      "provider_tokens_total",
			Help:      "Total tokens consumed by provider calls",
		},
		[]string{"provider", "model", "type"},
	)

	QuotaRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "botgate",
			Name:      "quota_rejections_total",
			Help:      "Total requests refused by the quota ledger",
		},
	)

	QuotaSweepResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "botgate",
			Name:      "quota_sweep_resets_total",
			Help:      "Total stale quota records reclaimed by the sweeper",
		},
	)
)

var respondMetricsRegistered bool

// RegisterRespondMetrics registers response-pipeline metrics. Must be called
// once from main.
func RegisterRespondMetrics() {
	if respondMetricsRegistered {
		return
	}
	prometheus.MustRegister(RespondRequestsTotal)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(ProviderTokensTotal)
	prometheus.MustRegister(QuotaRejectionsTotal)
	prometheus.MustRegister(QuotaSweepResetsTotal)
	respondMetricsRegistered = true
}
