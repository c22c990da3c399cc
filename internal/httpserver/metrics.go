package httpserver

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	guardDecisions *prometheus.CounterVec
	sessionActions *prometheus.CounterVec
	proxyDuration  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		guardDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "guard_decisions_total",
			Help:      "Route guard outcomes for page requests.",
		}, []string{"outcome"}),
		sessionActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "session_actions_total",
			Help:      "Session cookie actions by result.",
		}, []string{"action", "result"}),
		proxyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "api_proxy_duration_seconds",
			Help:      "Latency of proxied backend API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}
}

// statusClass collapses a status code to "2xx", "4xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
