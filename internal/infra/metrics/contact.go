package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		botMessagesTotal,
		contactMessagesTotal,
		rateLimitTriggeredTotal,
	)
}

var (
	// kind: purchase|auth|contact ; status: sent|error|skipped
	botMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_messages_total",
			Help: "Outbound Telegram bot messages by kind and status.",
		},
		[]string{"kind", "status"},
	)

	contactMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_messages_total",
			Help: "Contact form submissions by result.",
		},
		[]string{"result"},
	)

	rateLimitTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_triggered_total",
			Help: "Requests rejected by a rate limiter.",
		},
		[]string{"scope"},
	)
)

func IncBotMessage(kind, status string) {
	botMessagesTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func IncContactMessage(result string) {
	contactMessagesTotal.WithLabelValues(norm(result)).Inc()
}

func IncRateLimitTriggered(scope string) {
	rateLimitTriggeredTotal.WithLabelValues(norm(scope)).Inc()
}
