package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the runtime.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	SessionEvents      *prometheus.CounterVec
	ConversationEvents *prometheus.CounterVec
	CapabilityErrors   *prometheus.CounterVec
	CapabilityLatency  *prometheus.HistogramVec
	AudioEvents        *prometheus.CounterVec
	AgentFetches       *prometheus.CounterVec
	Rejections         *prometheus.CounterVec
	StreamMessages     *prometheus.CounterVec

	gatherer prometheus.Gatherer
	window   *latencyWindow
}

// NewMetrics registers instruments on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWith registers instruments on reg. Tests pass a fresh registry.
func NewMetricsWith(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of connected conversation sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Conversation session lifecycle events by type.",
		}, []string{"event"}),
		ConversationEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_events_total",
			Help:      "Events dispatched by the conversation controller by kind.",
		}, []string{"kind"}),
		CapabilityErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_errors_total",
			Help:      "Capability failures by component and operation.",
		}, []string{"component", "op"}),
		CapabilityLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_latency_ms",
			Help:      "Latency of capability calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 200, 400, 800, 1600, 3200},
		}, []string{"component", "op"}),
		AudioEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_events_total",
			Help:      "Audio resource manager events by type.",
		}, []string{"event"}),
		AgentFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_fetches_total",
			Help:      "Agent directory fetches by outcome.",
		}, []string{"outcome"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_intents_total",
			Help:      "Intents rejected by a precondition, by component and operation.",
		}, []string{"component", "op"}),
		StreamMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "State stream websocket messages by outcome.",
		}, []string{"outcome"}),
		gatherer: gatherer,
		window:   newLatencyWindow(128),
	}
}

// ObserveCapability records the latency of a capability call and counts a
// failure when err is non-nil.
func (m *Metrics) ObserveCapability(component, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	ms := float64(time.Since(started).Milliseconds())
	m.CapabilityLatency.WithLabelValues(component, op).Observe(ms)
	m.window.Observe(component+"/"+op, ms, err != nil)
	if err != nil {
		m.CapabilityErrors.WithLabelValues(component, op).Inc()
	}
}

func (m *Metrics) ObserveRejection(component, op string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(component, op).Inc()
}

// SnapshotLatency returns rolling per-operation latency stats.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil || m.window == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Ops: []OpLatency{}}
	}
	return m.window.Snapshot()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
