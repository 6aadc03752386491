package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		upstreamRequestsTotal,
		upstreamRetriesTotal,
		upstreamDuration,
	)
}

var (
	// result: ok|<error code>, lower-cased
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Calls to the subscription API by endpoint and final result.",
		},
		[]string{"endpoint", "result"},
	)

	// reason: unauthorized|network
	upstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Retried upstream attempts by endpoint and reason.",
		},
		[]string{"endpoint", "reason"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Wall time of an upstream call including retries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"endpoint"},
	)
)

func ObserveUpstreamRequest(endpoint, result string, d time.Duration) {
	ep := norm(endpoint)
	upstreamRequestsTotal.WithLabelValues(ep, norm(result)).Inc()
	upstreamDuration.WithLabelValues(ep).Observe(d.Seconds())
}

func IncUpstreamRetry(endpoint, reason string) {
	upstreamRetriesTotal.WithLabelValues(norm(endpoint), norm(reason)).Inc()
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
