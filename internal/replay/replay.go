// Package replay re-publishes clips recorded in a metadata log, e.g. after
// the ingestion endpoint was unreachable during capture.
package replay

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"camclip/internal/probe"
	"camclip/internal/sink"
	"camclip/internal/storage"
	"camclip/pkg/models"
)

// Result summarizes a replay run
type Result struct {
	Entries   int
	Published int
	Failed    int
}

// ProbeFunc extracts stream properties of an encoded clip
type ProbeFunc func(data []byte) (probe.Info, error)

// Replayer publishes logged clips through a sink
type Replayer struct {
	store storage.Storage
	sink  sink.Sink
	probe ProbeFunc
	log   logrus.FieldLogger
}

// New creates a replayer reading clips from store
func New(store storage.Storage, s sink.Sink, log logrus.FieldLogger) *Replayer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Replayer{
		store: store,
		sink:  s,
		probe: probe.Bytes,
		log:   log.WithField("component", "replay"),
	}
}

// WithProbe replaces the mp4 probe
func (r *Replayer) WithProbe(p ProbeFunc) *Replayer {
	r.probe = p
	return r
}

// Run replays every entry of the metadata log at path. Entries that cannot
// be loaded or published are logged and counted; only an unreadable log or
// a cancelled context abort the run.
func (r *Replayer) Run(ctx context.Context, path string) (Result, error) {
	var res Result

	f, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("failed to open metadata log: %w", err)
	}
	defer f.Close()

	err = sink.ScanMetadataLog(f, func(line int, meta *models.ClipMetadata, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.Entries++

		if err != nil {
			res.Failed++
			r.log.WithError(err).Warn("Skipping malformed metadata record")
			return nil
		}

		if err := r.publish(ctx, meta); err != nil {
			res.Failed++
			r.log.WithError(err).WithField("clip", meta.FileName).Warn("Could not replay clip")
			return nil
		}
		res.Published++
		return nil
	})

	r.log.WithFields(logrus.Fields{
		"entries":   res.Entries,
		"published": res.Published,
		"failed":    res.Failed,
	}).Info("Replay finished")
	return res, err
}

func (r *Replayer) publish(ctx context.Context, meta *models.ClipMetadata) error {
	data, err := r.store.Read(ctx, meta.FileName)
	if err != nil {
		return err
	}

	// The clip itself is authoritative for its stream properties
	if info, err := r.probe(data); err != nil {
		r.log.WithError(err).WithField("clip", meta.FileName).Debug("Could not probe clip, using logged metadata")
	} else {
		if info.FrameCount > 0 {
			meta.FrameCount = info.FrameCount
		}
		if info.FPS > 0 {
			meta.FPS = info.FPS
		}
		if info.Width > 0 && info.Height > 0 {
			meta.Width, meta.Height = float64(info.Width), float64(info.Height)
		}
	}

	clip := &models.Clip{
		FileName:    meta.FileName,
		Data:        data,
		ContentType: storage.ContentType(meta.FileName),
	}
	return r.sink.Emit(ctx, clip, meta)
}
