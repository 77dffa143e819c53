package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"camclip/pkg/models"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Capture metrics
	FramesCaptured prometheus.Counter
	FramesPending  prometheus.Gauge
	ReadFailures   prometheus.Counter
	Reopens        *prometheus.CounterVec
	RecorderState  *prometheus.GaugeVec

	// Clip metrics
	ClipsFlushed  prometheus.Counter
	ClipDuration  prometheus.Histogram
	ClipSize      prometheus.Histogram
	ClipFrames    prometheus.Histogram
	FlushDuration prometheus.Histogram
	EncodeErrors  prometheus.Counter

	// Sink metrics
	SinkWrites *prometheus.CounterVec
	SinkErrors *prometheus.CounterVec

	// Preview metrics
	PreviewDropped prometheus.Counter

	// Storage metrics
	ClipsStored prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	m := &Metrics{
		// Capture metrics
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "camclip_frames_captured_total",
			Help: "Total number of frames read from the capture source",
		}),
		FramesPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "camclip_frames_pending",
			Help: "Frames buffered for the current segment",
		}),
		ReadFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "camclip_frame_read_failures_total",
			Help: "Total number of failed frame reads",
		}),
		Reopens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camclip_source_reopens_total",
				Help: "Capture source re-open attempts",
			},
			[]string{"result"}, // result: ok or failed
		),
		RecorderState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "camclip_recorder_state",
				Help: "Current recorder state (1 for the active state)",
			},
			[]string{"state"},
		),

		// Clip metrics
		ClipsFlushed: f.NewCounter(prometheus.CounterOpts{
			Name: "camclip_clips_flushed_total",
			Help: "Total number of clips encoded and emitted",
		}),
		ClipDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "camclip_clip_duration_seconds",
			Help:    "Wall-clock duration of clips",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),
		ClipSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "camclip_clip_size_bytes",
			Help:    "Size of encoded clips in bytes",
			Buckets: prometheus.ExponentialBuckets(10240, 2, 12), // 10KB to ~20MB
		}),
		ClipFrames: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "camclip_clip_frames",
			Help:    "Number of frames per clip",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "camclip_flush_duration_seconds",
			Help:    "Time spent encoding and emitting a clip",
			Buckets: prometheus.DefBuckets,
		}),
		EncodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "camclip_encode_errors_total",
			Help: "Total number of clips that failed to encode",
		}),

		// Sink metrics
		SinkWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camclip_sink_writes_total",
				Help: "Clips successfully handed to a sink",
			},
			[]string{"sink"},
		),
		SinkErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camclip_sink_errors_total",
				Help: "Clips a sink failed to accept",
			},
			[]string{"sink"},
		),

		PreviewDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "camclip_preview_frames_dropped_total",
			Help: "Preview frames replaced before they were consumed",
		}),

		ClipsStored: f.NewGauge(prometheus.GaugeOpts{
			Name: "camclip_clips_stored",
			Help: "Number of clips currently kept by the local sink",
		}),

		// HTTP metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camclip_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "camclip_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	return m
}

// RecordFrame records a frame appended to the buffer
func (m *Metrics) RecordFrame(pending int) {
	m.FramesCaptured.Inc()
	m.FramesPending.Set(float64(pending))
}

// RecordReadFailure records a failed frame read
func (m *Metrics) RecordReadFailure() {
	m.ReadFailures.Inc()
}

// RecordReopen records a source re-open attempt
func (m *Metrics) RecordReopen(ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	m.Reopens.WithLabelValues(result).Inc()
}

// RecordState marks state as the active recorder state
func (m *Metrics) RecordState(state models.RecorderState) {
	for _, s := range []models.RecorderState{
		models.RecorderStateIdle,
		models.RecorderStateRunning,
		models.RecorderStateStopping,
	} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.RecorderState.WithLabelValues(string(s)).Set(v)
	}
}

// RecordClip records a clip that was encoded
func (m *Metrics) RecordClip(durationSeconds float64, frames int, sizeBytes int, flushSeconds float64) {
	m.ClipsFlushed.Inc()
	m.ClipDuration.Observe(durationSeconds)
	m.ClipFrames.Observe(float64(frames))
	m.ClipSize.Observe(float64(sizeBytes))
	m.FlushDuration.Observe(flushSeconds)
	m.FramesPending.Set(0)
}

// RecordEncodeError records a clip that could not be encoded
func (m *Metrics) RecordEncodeError() {
	m.EncodeErrors.Inc()
}

// RecordSinkWrite records a clip accepted by sink
func (m *Metrics) RecordSinkWrite(sink string) {
	m.SinkWrites.WithLabelValues(sink).Inc()
}

// RecordSinkError records a clip rejected by sink
func (m *Metrics) RecordSinkError(sink string) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// RecordPreviewDropped records a preview frame replaced before delivery
func (m *Metrics) RecordPreviewDropped() {
	m.PreviewDropped.Inc()
}

// SetClipsStored sets the number of clips kept on storage
func (m *Metrics) SetClipsStored(n int) {
	m.ClipsStored.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, path, statusCodeToString(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// statusCodeToString converts an HTTP status code to a string
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
