package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for the order tracking service.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	OrderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Committed order status transitions",
		},
		[]string{"from", "to"},
	)

	OrderTransitionRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_transition_rejections_total",
			Help: "Status changes rejected by the lifecycle",
		},
	)

	HubMessagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_messages_published_total",
			Help: "Messages accepted by the fan-out hub, by channel kind",
		},
		[]string{"kind"},
	)

	HubMessagesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_dropped_total",
			Help: "Messages dropped because a subscriber queue was full",
		},
	)

	HubPublishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_publish_failures_total",
			Help: "Publishes that could not reach the delivery substrate",
		},
	)

	EventMirrorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_mirror_failures_total",
			Help: "Domain events that an external mirror failed to accept",
		},
		[]string{"mirror"},
	)

	GatewaySessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_sessions_active",
			Help: "Open real-time sessions",
		},
	)

	ETALookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eta_lookups_total",
			Help: "ETA lookups by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			OrderTransitionsTotal,
			OrderTransitionRejectionsTotal,
			HubMessagesPublishedTotal,
			HubMessagesDroppedTotal,
			HubPublishFailuresTotal,
			EventMirrorFailuresTotal,
			GatewaySessionsActive,
			ETALookupsTotal,
		)
	})
}
