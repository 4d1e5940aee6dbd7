package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgw_messages_total",
			Help: "Messages lifecycle counter by stage and encoding",
		},
		[]string{"stage", "encoding"}, // queued|sent|failed|delivered|undelivered , gsm7|ucs2
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgw_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by window",
		},
		[]string{"window"}, // minute|hour|day
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smsgw_provider_request_seconds",
			Help:    "Upstream provider call latency by operation and outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "op", "outcome"}, // send|dlr , ok|error
	)

	DeliveryChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsgw_delivery_checks_total",
			Help: "Delivery tracker check outcomes",
		},
		[]string{"outcome"}, // delivered|undelivered|pending|error|exhausted
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		MessagesTotal,
		RateLimitedTotal,
		ProviderRequestDuration,
		DeliveryChecksTotal,
	)
}
