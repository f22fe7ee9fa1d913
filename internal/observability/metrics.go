package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSession     prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	ControlMessages   *prometheus.CounterVec
	StartFailures     *prometheus.CounterVec
	PlaybackResults   *prometheus.CounterVec
	SynthesisRequests *prometheus.CounterVec
	UpstreamErrors    *prometheus.CounterVec
	EventDrops        prometheus.Counter
	StartLatency      prometheus.Histogram
	Latency           *LatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers instruments on reg, which lets tests use a
// throwaway registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSession: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_session",
			Help:      "1 while a realtime voice session is active.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		ControlMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Control-channel messages by direction and type.",
		}, []string{"direction", "type"}),
		StartFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_failures_total",
			Help:      "Failed session starts by error kind.",
		}, []string{"kind"}),
		PlaybackResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_total",
			Help:      "Playback attempts by result.",
		}, []string{"result"}),
		SynthesisRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_requests_total",
			Help:      "Speech synthesis requests by result.",
		}, []string{"result"}),
		UpstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Gateway upstream errors by upstream and code.",
		}, []string{"upstream", "code"}),
		EventDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_drops_total",
			Help:      "Session events dropped because a subscriber was too slow.",
		}),
		StartLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "start_latency_ms",
			Help:      "Latency from start request to active session in milliseconds.",
			Buckets:   []float64{250, 500, 750, 1000, 1500, 2000, 3000, 5000, 8000},
		}),
		Latency: NewLatencyWindow(128),
	}
}

func (m *Metrics) ObserveStartLatency(d time.Duration) {
	m.StartLatency.Observe(float64(d.Milliseconds()))
	m.Latency.Observe(StageSessionStart, d)
}

func (m *Metrics) ObserveSynthesisLatency(d time.Duration) {
	m.Latency.Observe(StageSynthesis, d)
}

func (m *Metrics) ObserveControlMessage(direction, messageType string) {
	if messageType == "" {
		messageType = "invalid"
	}
	m.ControlMessages.WithLabelValues(direction, messageType).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
