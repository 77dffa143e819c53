package sink

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"camclip/internal/metrics"
	"camclip/pkg/models"
)

// Multi fans a clip out to several sinks. Every sink is attempted, failures
// are joined into the returned error.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Name implements Sink
func (m *Multi) Name() string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Emit implements Sink
func (m *Multi) Emit(ctx context.Context, clip *models.Clip, meta *models.ClipMetadata) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, clip, meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type instrumented struct {
	Sink
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// Instrument wraps s so that every emit is counted and errors carry the
// sink name as an *Error
func Instrument(s Sink, m *metrics.Metrics, log logrus.FieldLogger) Sink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &instrumented{Sink: s, metrics: m, log: log.WithField("sink", s.Name())}
}

func (i *instrumented) Emit(ctx context.Context, clip *models.Clip, meta *models.ClipMetadata) error {
	start := time.Now()
	err := i.Sink.Emit(ctx, clip, meta)
	if err != nil {
		if i.metrics != nil {
			i.metrics.RecordSinkError(i.Name())
		}
		return &Error{Sink: i.Name(), Err: err}
	}

	if i.metrics != nil {
		i.metrics.RecordSinkWrite(i.Name())
	}
	i.log.WithFields(logrus.Fields{
		"clip":    meta.FileName,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("Clip emitted")
	return nil
}
