// Package grmetrics exposes prometheus counters/gauges for the control
// plane's own activity (dispatch throughput, event-bus fanout, trace-ring
// drops) — ambient observability that no Non-goal excludes. It is grounded
// on caddyserver-caddy/internal/metrics/metrics.go's registry conventions,
// trimmed of that file's HTTP-method/HTTP-status label sanitizers since
// this daemon has no HTTP surface; there is also no HTTP handler here to
// Gather() into — callers needing a snapshot call Gather() directly (e.g.
// from an admin request handler), matching the spec's "Gather()-only, no
// HTTP exposure" requirement.
package grmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry is the process-wide metrics registry. A dedicated registry
// (rather than prometheus.DefaultRegisterer) keeps this daemon from
// picking up the client library's own default process/Go runtime
// collectors unless explicitly added.
var Registry = prometheus.NewRegistry()

var (
	// RequestsTotal counts dispatched API requests by handler name and
	// outcome status.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groutd",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total API requests dispatched, by handler and status.",
	}, []string{"handler", "status"})

	// RequestDuration observes per-request dispatch latency.
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "groutd",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "API request dispatch latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler"})

	// EventsPublishedTotal counts events published on the event bus, by
	// topic.
	EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groutd",
		Subsystem: "event",
		Name:      "published_total",
		Help:      "Total events published on the event bus, by topic.",
	}, []string{"topic"})

	// TraceRingDroppedTotal counts trace chains evicted by the trace
	// ring's oldest-drop policy.
	TraceRingDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "groutd",
		Subsystem: "trace",
		Name:      "ring_dropped_total",
		Help:      "Total trace chains dropped from the ring due to exhaustion.",
	})

	// TraceRingLen gauges the trace ring's current occupancy.
	TraceRingLen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "groutd",
		Subsystem: "trace",
		Name:      "ring_len",
		Help:      "Current number of trace chains held in the ring.",
	})

	// InterfacesTotal gauges the interface table's current size, by type.
	InterfacesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "groutd",
		Subsystem: "infra",
		Name:      "interfaces_total",
		Help:      "Current number of interfaces in the table, by type.",
	}, []string{"type"})
)

func init() {
	Registry.MustRegister(
		RequestsTotal,
		RequestDuration,
		EventsPublishedTotal,
		TraceRingDroppedTotal,
		TraceRingLen,
		InterfacesTotal,
	)
}

// Gather returns the current value of every registered metric family, the
// sole way this daemon's metrics are ever read (no HTTP /metrics
// endpoint is exposed).
func Gather() ([]*dto.MetricFamily, error) {
	return Registry.Gather()
}
