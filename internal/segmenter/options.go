package segmenter

import (
	"time"

	"github.com/sirupsen/logrus"

	"camclip/internal/metrics"
)

// Default recorder settings
const (
	DefaultInterval       = 60 * time.Second
	DefaultReopenAttempts = 3
	DefaultReopenDelay    = time.Second
	DefaultMaxReopenDelay = 10 * time.Second
	DefaultFPS            = 20.0
)

// Options configures a Recorder
type Options struct {
	CameraID   int
	Interval   time.Duration // Segment length
	Width      float64       // Requested capture width, 0 keeps the device default
	Height     float64       // Requested capture height, 0 keeps the device default
	FilePrefix string        // Prepended to clip file names

	// Read failure policy: after a failed read the source is re-opened, up to
	// ReopenAttempts consecutive times without a successful read in between.
	// Zero stops the loop on the first failed read.
	ReopenAttempts int
	ReopenDelay    time.Duration // Backoff before the first re-open, doubled per attempt
	MaxReopenDelay time.Duration

	// DefaultFPS is used when the source does not report a frame rate
	DefaultFPS float64
}

func (o *Options) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.ReopenAttempts < 0 {
		o.ReopenAttempts = 0
	}
	if o.MaxReopenDelay <= 0 {
		o.MaxReopenDelay = DefaultMaxReopenDelay
	}
	if o.DefaultFPS <= 0 {
		o.DefaultFPS = DefaultFPS
	}
}

// Option customizes a Recorder
type Option func(*Recorder)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Recorder) {
		r.log = log
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithPreview hands every captured frame to p
func WithPreview(p FramePublisher) Option {
	return func(r *Recorder) {
		r.preview = p
	}
}

// WithSessionID overrides the generated session id
func WithSessionID(id string) Option {
	return func(r *Recorder) {
		r.sessionID = id
	}
}
