// Package metrics exposes receive-pipeline counters on an optional
// Prometheus listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	EnvelopesReceived *prometheus.CounterVec
	MessagesStored    prometheus.Counter
	Duplicates        prometheus.Counter
	DecodeErrors      prometheus.Counter
	ActionFailures    prometheus.Counter
	Notifications     prometheus.Counter
	CallSignals       prometheus.Counter
	OutboxSent        prometheus.Counter
	OutboxFailed      prometheus.Counter
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EnvelopesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portd",
			Name:      "envelopes_received_total",
			Help:      "Inbound envelopes by content type.",
		}, []string{"content_type"}),
		MessagesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portd",
			Name:      "messages_stored_total",
			Help:      "Messages durably persisted.",
		}),
		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portd",
			Name:      "duplicate_envelopes_total",
			Help:      "Envelopes skipped by the dedup guard.",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portd",
			Name:      "decode_errors_total",
			Help:      "Envelopes dropped for payload/content-type mismatch.",
		}),
		ActionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portd",
			Name:      "action_failures_total",
			Help:      "Receive actions that failed and were reported for redelivery.",
		}),
		Notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portd",
			Name:      "notifications_total",
			Help:      "Notification requests emitted.",
		}),
		CallSignals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portd",
			Name:      "call_signals_total",
			Help:      "Call signaling payloads routed to the call channel.",
		}),
		OutboxSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portd",
			Name:      "outbox_sent_total",
			Help:      "Outbox entries handed to the transport.",
		}),
		OutboxFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "portd",
			Name:      "outbox_failed_total",
			Help:      "Outbox entries that failed to send.",
		}),
	}
}

// Handler returns the scrape handler for the daemon's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts a blocking HTTP listener exposing /metrics. Callers run
// it in a goroutine; an empty addr is the caller's cue not to call this.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
