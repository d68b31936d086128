// Package metrics exposes Prometheus instrumentation for the streaming core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for a voicewire client. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FramesIn      *prometheus.CounterVec
	FramesOut     *prometheus.CounterVec
	ParseErrors   prometheus.Counter
	UnknownFrames prometheus.Counter

	ReconnectAttempts  prometheus.Counter
	ReconnectExhausted prometheus.Counter
	SessionsTotal      prometheus.Counter

	QueueDepth      prometheus.Gauge
	AudioBytesTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all metrics registered on a
// private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicewire"
	}

	registry := prometheus.NewRegistry()

	framesIn := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_in_total",
			Help:      "Inbound frames by kind",
		},
		[]string{"kind"},
	)
	framesOut := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_out_total",
			Help:      "Outbound frames by kind",
		},
		[]string{"kind"},
	)
	parseErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frame_parse_errors_total",
		Help:      "Inbound frames dropped as malformed",
	})
	unknownFrames := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_unknown_total",
		Help:      "Inbound frames dropped for unknown type",
	})
	reconnectAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnect_attempts_total",
		Help:      "Reconnection attempts",
	})
	reconnectExhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnect_exhausted_total",
		Help:      "Sessions abandoned after exhausting the attempt budget",
	})
	sessionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Sessions established (including reconnects)",
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outbound_queue_depth",
		Help:      "Messages waiting for the transport to become active",
	})
	audioBytes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "PCM bytes by direction",
		},
		[]string{"direction"},
	)

	registry.MustRegister(
		framesIn, framesOut, parseErrors, unknownFrames,
		reconnectAttempts, reconnectExhausted, sessionsTotal,
		queueDepth, audioBytes,
	)

	return &Metrics{
		registry:           registry,
		FramesIn:           framesIn,
		FramesOut:          framesOut,
		ParseErrors:        parseErrors,
		UnknownFrames:      unknownFrames,
		ReconnectAttempts:  reconnectAttempts,
		ReconnectExhausted: reconnectExhausted,
		SessionsTotal:      sessionsTotal,
		QueueDepth:         queueDepth,
		AudioBytesTotal:    audioBytes,
	}
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Nil-safe recording helpers, so components can take an optional *Metrics.

func (m *Metrics) IncFrameIn(kind string) {
	if m == nil {
		return
	}
	m.FramesIn.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncFrameOut(kind string) {
	if m == nil {
		return
	}
	m.FramesOut.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

func (m *Metrics) IncUnknownFrame() {
	if m == nil {
		return
	}
	m.UnknownFrames.Inc()
}

func (m *Metrics) IncReconnectAttempt() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) IncReconnectExhausted() {
	if m == nil {
		return
	}
	m.ReconnectExhausted.Inc()
}

func (m *Metrics) IncSession() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) AddAudioBytes(direction string, n int) {
	if m == nil {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(n))
}
