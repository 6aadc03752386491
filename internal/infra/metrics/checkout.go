package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutTransitionsTotal,
		checkoutSessionsActive,
		topupPollsTotal,
	)
}

var (
	checkoutTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_transitions_total",
			Help: "Checkout state transitions by target state.",
		},
		[]string{"state"},
	)

	checkoutSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_sessions_active",
			Help: "Checkout sessions currently held in memory.",
		},
	)

	// status: pending|completed|failed|error|expired
	topupPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_polls_total",
			Help: "Top-up status polls by observed status.",
		},
		[]string{"status"},
	)
)

func IncCheckoutTransition(state string) {
	checkoutTransitionsTotal.WithLabelValues(norm(state)).Inc()
}

func SetCheckoutSessions(n int) {
	checkoutSessionsActive.Set(float64(n))
}

func IncTopupPoll(status string) {
	topupPollsTotal.WithLabelValues(norm(status)).Inc()
}
