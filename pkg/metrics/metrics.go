package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenIssuance records access-token grants by method (password|refresh) and result.
	TokenIssuance = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_token_issuance_total",
			Help: "Total number of access token issuance attempts",
		},
		[]string{"grant", "result"},
	)

	// OTPDispatches counts OTP deliveries by channel (whatsapp|sms) and result.
	OTPDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_otp_dispatch_total",
			Help: "Total number of OTP delivery attempts",
		},
		[]string{"channel", "result"},
	)

	// InviteRedemptions counts invite-link redemption outcomes.
	InviteRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_invite_redemptions_total",
			Help: "Total number of invite link redemption attempts",
		},
		[]string{"result"},
	)

	// EventsPublished counts entity-change events flushed to the bus.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_events_published_total",
			Help: "Total number of entity change events flushed",
		},
		[]string{"event", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accounts_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
