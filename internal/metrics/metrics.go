package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venty_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "venty_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Negotiation metrics
	ConversationsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venty_conversations_opened_total",
			Help: "Total conversations created",
		},
		[]string{"variant"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venty_messages_sent_total",
			Help: "Total messages appended to transcripts",
		},
		[]string{"variant"},
	)

	SendRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venty_send_rejections_total",
			Help: "Total rejected sends",
		},
		[]string{"reason"}, // empty_message, channel_locked, policy_warning, ...
	)

	OffPlatformAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venty_off_platform_attempts_total",
			Help: "Total messages blocked by the off-platform detector",
		},
		[]string{"reason"}, // external_keyword or contact_pattern
	)

	Suspensions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "venty_sender_suspensions_total",
			Help: "Total senders suspended after repeated violations",
		},
	)

	AgreementToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venty_agreement_toggles_total",
			Help: "Total agreement toggles",
		},
		[]string{"variant"},
	)

	AgreementsReached = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venty_agreements_reached_total",
			Help: "Total conversations that reached agreement",
		},
		[]string{"variant"},
	)

	ConversationsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venty_conversations_closed_total",
			Help: "Total conversations closed without agreement",
		},
		[]string{"by"}, // participant or admin
	)

	ViolationResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "venty_violation_resets_total",
			Help: "Total administrative violation resets",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venty_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// WebSocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "venty_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)
)
