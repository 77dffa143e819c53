package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"camclip/internal/metrics"
	"camclip/internal/storage"
	"camclip/pkg/models"
)

// DefaultMetadataFile is the name of the NDJSON log inside the output directory
const DefaultMetadataFile = "metadata.json"

// LocalOptions configures a LocalFileSink
type LocalOptions struct {
	// MetadataPath is the NDJSON log every record is appended to
	MetadataPath string
	// MaxClips keeps at most this many clips in the store, oldest deleted
	// first. Zero keeps everything.
	MaxClips int
}

// LocalFileSink stores the encoded clip and appends its metadata as one JSON
// line to the metadata log
type LocalFileSink struct {
	store   storage.Storage
	opts    LocalOptions
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu sync.Mutex
}

// NewLocalFileSink creates a sink writing clips to store. m may be nil.
func NewLocalFileSink(store storage.Storage, opts LocalOptions, log logrus.FieldLogger, m *metrics.Metrics) *LocalFileSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LocalFileSink{
		store:   store,
		opts:    opts,
		log:     log.WithField("sink", "local"),
		metrics: m,
	}
}

// Name implements Sink
func (s *LocalFileSink) Name() string { return "local" }

// Emit stores the clip, appends the metadata record and applies retention
func (s *LocalFileSink) Emit(ctx context.Context, clip *models.Clip, meta *models.ClipMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if clip != nil && len(clip.Data) > 0 {
		if err := s.store.Write(ctx, clip.FileName, clip.Data, clip.ContentType); err != nil {
			return fmt.Errorf("failed to store clip %s: %w", clip.FileName, err)
		}
	}

	if err := AppendMetadata(s.opts.MetadataPath, meta); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"clip":     meta.FileName,
		"location": s.store.Location(meta.FileName),
	}).Debug("Clip stored")

	if s.opts.MaxClips > 0 {
		s.enforceRetention(ctx, filepath.Ext(meta.FileName))
	}
	return nil
}

// enforceRetention deletes the oldest clips so that at most MaxClips remain.
// Deletion failures are logged, the record itself was already persisted.
func (s *LocalFileSink) enforceRetention(ctx context.Context, ext string) {
	clips, err := s.store.List(ctx, strings.TrimPrefix(ext, "."))
	if err != nil {
		s.log.WithError(err).Warn("Could not list clips for retention")
		return
	}

	remaining := len(clips)
	if excess := len(clips) - s.opts.MaxClips; excess > 0 {
		for _, old := range clips[:excess] {
			if err := s.store.Delete(ctx, old.Name); err != nil {
				s.log.WithError(err).WithField("clip", old.Name).Warn("Could not delete old clip")
				continue
			}
			remaining--
			s.log.WithField("clip", old.Name).Debug("Deleted old clip")
		}
	}

	if s.metrics != nil {
		s.metrics.SetClipsStored(remaining)
	}
}

// AppendMetadata appends meta as a single JSON line to path. The file is
// opened, written, synced and closed per record.
func AppendMetadata(path string, meta *models.ClipMetadata) error {
	line, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	line = append(line, '\n')

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metadata directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open metadata log: %w", err)
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append metadata: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync metadata log: %w", err)
	}
	return f.Close()
}
