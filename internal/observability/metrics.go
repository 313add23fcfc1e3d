package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the voice client.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	ChannelFrames      *prometheus.CounterVec
	ProviderErrors     *prometheus.CounterVec
	BackendRequests    *prometheus.CounterVec
	NegotiationLatency *prometheus.HistogramVec
	SnapshotSubs       prometheus.Gauge

	stages   *negotiationWindow
	gatherer prometheus.Gatherer
}

// NewRegistry returns a private registry carrying the Go runtime and process
// collectors, so each app instance owns its instruments.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics registers instruments with reg. A nil reg uses the default
// registry served by MetricsHandler.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live realtime voice sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		ChannelFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_channel_frames_total",
			Help:      "Data channel frames by direction and event type.",
		}, []string{"direction", "type"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Realtime provider errors by code.",
		}, []string{"code"}),
		BackendRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "EMORY backend calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		NegotiationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "negotiation_stage_latency_ms",
			Help:      "Latency of each connect stage in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1500, 3000, 6000, 10000},
		}, []string{"stage"}),
		SnapshotSubs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_subscribers",
			Help:      "Number of WebSocket clients streaming session snapshots.",
		}),
		stages:   newNegotiationWindow(128),
		gatherer: gatherer,
	}
}

// ObserveStage records one negotiation stage in the histogram and the
// window behind /v1/perf/negotiation.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.NegotiationLatency.WithLabelValues(stage).Observe(float64(d.Microseconds()) / 1000)
	m.stages.observe(stage, d)
}

// ObserveOutcome counts how a connect attempt ended (OutcomeConnected,
// OutcomeFailed or OutcomeSuperseded).
func (m *Metrics) ObserveOutcome(name string) {
	if m == nil {
		return
	}
	m.stages.outcome(name)
}

func (m *Metrics) Negotiation() NegotiationSnapshot {
	if m == nil {
		return NegotiationSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageLatency{}, Outcomes: map[string]int{}}
	}
	return m.stages.snapshot()
}

// Handler serves the registry the instruments were registered with.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return MetricsHandler()
	}
	return HandlerFor(m.gatherer)
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific registry.
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
