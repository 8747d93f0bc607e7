// Package metrics wraps Prometheus instrumentation for the Realtime
// API client, grounded on the teacher corpus's
// internal/platform/observability metrics module. A nil *Metrics is a
// no-op: the streaming path never requires a registry to be wired.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client's Prometheus instrumentation.
type Metrics struct {
	PacketsReceived  *prometheus.CounterVec
	SenderReports    *prometheus.CounterVec
	MatchesProduced  *prometheus.CounterVec
	StreamReconnects *prometheus.CounterVec
	ControlRequests  *prometheus.CounterVec
	TimeOffsetMillis prometheus.Gauge
}

// New registers and returns a Metrics instance on reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer-backed promauto calls will panic on a
// second registration in the same process — callers embedding this in
// tests should construct a fresh registry per test.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neon",
			Subsystem: "stream",
			Name:      "packets_received_total",
			Help:      "Decoded samples received from sensor streams, by sensor.",
		}, []string{"sensor"}),

		SenderReports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neon",
			Subsystem: "rtcp",
			Name:      "sender_reports_total",
			Help:      "RTCP sender reports processed, by sensor.",
		}, []string{"sensor"}),

		MatchesProduced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neon",
			Subsystem: "match",
			Name:      "matches_produced_total",
			Help:      "Cross-stream matches produced, by kind (gaze_scene, gaze_eyes_scene).",
		}, []string{"kind"}),

		StreamReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neon",
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "RTSP stream (re)connection attempts, by sensor.",
		}, []string{"sensor"}),

		ControlRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neon",
			Subsystem: "control",
			Name:      "requests_total",
			Help:      "Control-plane HTTP requests, by path and outcome.",
		}, []string{"path", "outcome"}),

		TimeOffsetMillis: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "neon",
			Subsystem: "timeecho",
			Name:      "offset_milliseconds",
			Help:      "Most recent estimated clock offset to the device, in milliseconds.",
		}),
	}
}

// IncPacketsReceived increments the packet counter for sensor if m is
// non-nil.
func (m *Metrics) IncPacketsReceived(sensor string) {
	if m == nil {
		return
	}
	m.PacketsReceived.WithLabelValues(sensor).Inc()
}

// IncSenderReports increments the RTCP SR counter for sensor if m is
// non-nil.
func (m *Metrics) IncSenderReports(sensor string) {
	if m == nil {
		return
	}
	m.SenderReports.WithLabelValues(sensor).Inc()
}

// IncMatchesProduced increments the match counter for kind if m is
// non-nil.
func (m *Metrics) IncMatchesProduced(kind string) {
	if m == nil {
		return
	}
	m.MatchesProduced.WithLabelValues(kind).Inc()
}

// IncStreamReconnects increments the reconnect counter for sensor if m
// is non-nil.
func (m *Metrics) IncStreamReconnects(sensor string) {
	if m == nil {
		return
	}
	m.StreamReconnects.WithLabelValues(sensor).Inc()
}

// ObserveControlRequest increments the control-plane request counter
// for path/outcome if m is non-nil.
func (m *Metrics) ObserveControlRequest(path, outcome string) {
	if m == nil {
		return
	}
	m.ControlRequests.WithLabelValues(path, outcome).Inc()
}

// SetTimeOffsetMillis records the latest estimated clock offset if m
// is non-nil.
func (m *Metrics) SetTimeOffsetMillis(offsetMS float64) {
	if m == nil {
		return
	}
	m.TimeOffsetMillis.Set(offsetMS)
}
