package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JustinOng/esp-32-audio/internal/audio"
)

// Metrics contains all Prometheus metrics for the WAV sender
type Metrics struct {
	registry *prometheus.Registry

	// Chunk reader metrics
	ChunksParsed   *prometheus.CounterVec
	BytesSkipped   prometheus.Counter
	FormatWarnings *prometheus.CounterVec

	// Datagram metrics
	DatagramsSent    prometheus.Counter
	PayloadBytesSent prometheus.Counter
	SendErrors       prometheus.Counter
	DatagramSize     prometheus.Histogram
	SendDuration     prometheus.Histogram

	// HTTP status server metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Chunk reader metrics
		ChunksParsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavsend_chunks_parsed_total",
			Help: "Total number of RIFF chunks parsed, by kind",
		}, []string{"kind"}),
		BytesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavsend_bytes_skipped_total",
			Help: "Total number of bytes skipped in unknown chunks",
		}),
		FormatWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavsend_format_warnings_total",
			Help: "Total number of non-fatal format anomalies",
		}, []string{"kind"}),

		// Datagram metrics
		DatagramsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavsend_datagrams_sent_total",
			Help: "Total number of UDP datagrams sent",
		}),
		PayloadBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavsend_payload_bytes_sent_total",
			Help: "Total number of PCM payload bytes sent, excluding sequence headers",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wavsend_send_errors_total",
			Help: "Total number of failed datagram sends",
		}),
		DatagramSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavsend_datagram_payload_bytes",
			Help:    "Payload size of sent datagrams",
			Buckets: prometheus.ExponentialBuckets(64, 2, 11), // 64B to 64KB
		}),
		SendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wavsend_send_duration_seconds",
			Help:    "Time spent writing a single datagram to the socket",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavsend_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wavsend_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wavsend_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Handler returns an HTTP handler exposing the metrics in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordChunk counts a parsed chunk; unknown chunks also add to the skipped bytes
func (m *Metrics) RecordChunk(kind string, size uint32) {
	m.ChunksParsed.WithLabelValues(kind).Inc()
	if kind == audio.ChunkKindUnknown {
		m.BytesSkipped.Add(float64(size))
	}
}

// RecordFormatWarning counts a non-fatal format anomaly
func (m *Metrics) RecordFormatWarning(kind string) {
	m.FormatWarnings.WithLabelValues(kind).Inc()
}

// RecordDatagramSent records a successfully written datagram
func (m *Metrics) RecordDatagramSent(payloadBytes int, durationSeconds float64) {
	m.DatagramsSent.Inc()
	m.PayloadBytesSent.Add(float64(payloadBytes))
	m.DatagramSize.Observe(float64(payloadBytes))
	m.SendDuration.Observe(durationSeconds)
}

// RecordSendError increments the send errors counter
func (m *Metrics) RecordSendError() {
	m.SendErrors.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
