package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration tracks request latency across both the /v1/* and
// /admin/* surfaces.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// FallbackAttemptsTotal counts every provider/credential attempt made by
// the fallback executor, labeled by outcome.
var FallbackAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "fallback",
		Name:      "attempts_total",
		Help:      "Total number of fallback attempts by provider and outcome.",
	},
	[]string{"provider_id", "outcome"},
)

// FallbackExhaustedTotal counts requests where every provider mapping for a
// model alias was exhausted without a successful response.
var FallbackExhaustedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "fallback",
		Name:      "exhausted_total",
		Help:      "Total number of requests that exhausted all fallback options.",
	},
	[]string{"model_alias"},
)

// CircuitBreakerStateGauge reports the current circuit breaker state per
// provider: 0=closed, 1=half_open, 2=open.
var CircuitBreakerStateGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "gateway",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state per provider (0=closed, 1=half_open, 2=open).",
	},
	[]string{"provider_id"},
)

// RateLimitRejectionsTotal counts requests rejected by the sliding-window
// rate limiter, labeled by which dimension rejected it.
var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total number of requests rejected by the rate limiter, by check name.",
	},
	[]string{"check"},
)

// CredentialFailuresTotal counts consecutive-failure increments recorded
// against stored provider credentials.
var CredentialFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "credential",
		Name:      "failures_total",
		Help:      "Total number of failed upstream calls attributed to a credential.",
	},
	[]string{"provider_id"},
)

// ProviderRequestDuration tracks upstream provider call latency.
var ProviderRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Upstream provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"provider_id", "operation"},
)

// All returns every gateway-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		FallbackAttemptsTotal,
		FallbackExhaustedTotal,
		CircuitBreakerStateGauge,
		RateLimitRejectionsTotal,
		CredentialFailuresTotal,
		ProviderRequestDuration,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors plus the gateway's own metrics.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
