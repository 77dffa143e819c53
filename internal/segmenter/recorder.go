package segmenter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"camclip/internal/metrics"
	"camclip/internal/naming"
	"camclip/pkg/models"
)

// Recorder runs the segmenting capture loop: it pulls frames from a Source,
// buffers them, and every Interval encodes the buffer into a clip handed to
// a ClipSink together with its metadata.
//
// The source and the frame buffer are owned by the loop goroutine. Other
// goroutines interact with the loop only through Stop, Resize and Status.
type Recorder struct {
	opts      Options
	source    Source
	encoder   Encoder
	sink      ClipSink
	preview   FramePublisher
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time
	sessionID string

	running  atomic.Bool
	commands chan command

	mu           sync.RWMutex
	state        models.RecorderState
	cancel       context.CancelFunc
	done         chan struct{}
	err          error
	startedAt    time.Time
	segmentStart time.Time
	stats        models.RecorderStats
}

type command func(src Source) error

// New creates an idle recorder
func New(opts Options, source Source, encoder Encoder, sink ClipSink, options ...Option) *Recorder {
	opts.setDefaults()

	r := &Recorder{
		opts:     opts,
		source:   source,
		encoder:  encoder,
		sink:     sink,
		now:      time.Now,
		state:    models.RecorderStateIdle,
		commands: make(chan command, 8),
	}

	for _, o := range options {
		o(r)
	}

	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	if r.metrics == nil {
		r.metrics = metrics.New(prometheus.NewRegistry())
	}
	if r.sessionID == "" {
		r.sessionID = uuid.New().String()
	}
	r.log = r.log.WithFields(logrus.Fields{
		"session": r.sessionID,
		"camera":  opts.CameraID,
	})
	r.metrics.RecordState(models.RecorderStateIdle)

	return r
}

// Start opens the source and begins capturing on a dedicated goroutine.
// The loop runs until Stop is called, ctx is cancelled, or reads fail
// beyond the re-open policy.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != models.RecorderStateIdle {
		return ErrAlreadyRunning
	}

	if err := r.source.Open(ctx); err != nil {
		return fmt.Errorf("%w: camera %d: %w", ErrSourceUnavailable, r.opts.CameraID, err)
	}
	r.applySize(r.source)

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.err = nil
	r.startedAt = r.now()
	r.segmentStart = r.startedAt
	r.stats = models.RecorderStats{}
	r.setStateLocked(models.RecorderStateRunning)
	r.running.Store(true)

	// Drop commands left over from a previous session
	for len(r.commands) > 0 {
		<-r.commands
	}

	go r.run(loopCtx, r.done)

	r.log.WithFields(logrus.Fields{
		"interval": r.opts.Interval,
		"width":    r.opts.Width,
		"height":   r.opts.Height,
	}).Info("Recording started")
	return nil
}

// Stop clears the run flag and waits for the loop to exit and release the
// source. An in-flight flush completes first. Frames buffered for the
// current segment are discarded. Stop is idempotent.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.state == models.RecorderStateIdle {
		r.mu.Unlock()
		return
	}
	if r.state == models.RecorderStateRunning {
		r.setStateLocked(models.RecorderStateStopping)
	}
	r.running.Store(false)
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
}

// Done is closed when the current (or last) capture session has released
// its resources
func (r *Recorder) Done() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return r.done
}

// Err returns the error that ended the last session, nil after a clean stop
func (r *Recorder) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// State returns the current lifecycle state
func (r *Recorder) State() models.RecorderState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Status returns a snapshot of the recorder
func (r *Recorder) Status() models.RecorderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := models.RecorderStatus{
		SessionID: r.sessionID,
		State:     r.state,
		CameraID:  r.opts.CameraID,
		Interval:  r.opts.Interval.Seconds(),
		Stats:     r.stats,
	}
	if !r.startedAt.IsZero() {
		status.StartedAt = r.startedAt.Format(time.RFC3339)
	}
	if r.state == models.RecorderStateRunning {
		status.SegmentStart = r.segmentStart.Format(time.RFC3339Nano)
	}
	if r.err != nil {
		status.Error = r.err.Error()
	}
	return status
}

// Resize asks the loop to change the capture resolution. The change is
// applied by the loop goroutine before its next read.
func (r *Recorder) Resize(width, height float64) error {
	if !models.ValidDimension(width) || !models.ValidDimension(height) {
		return fmt.Errorf("invalid size %vx%v", width, height)
	}
	if !r.running.Load() {
		return ErrNotRunning
	}

	cmd := func(src Source) error {
		r.mu.Lock()
		r.opts.Width, r.opts.Height = width, height
		r.mu.Unlock()
		return src.SetSize(width, height)
	}

	select {
	case r.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("recorder command queue full")
	}
}

// run is the capture loop. It owns the source and the frame buffer.
func (r *Recorder) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer r.release()

	var (
		buffer       []models.Frame
		segmentStart = r.segmentSnapshot()
		reopens      int
	)

	defer func() {
		if len(buffer) > 0 {
			r.log.WithField("frames", len(buffer)).Info("Discarding frames of unfinished segment")
		}
	}()

	for r.running.Load() {
		if ctx.Err() != nil {
			return
		}
		r.drainCommands()

		frame, err := r.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			r.recordReadFailure()
			r.log.WithError(err).Warn("Could not read frame")

			if !r.recoverSource(ctx, &reopens, err) {
				return
			}
			continue
		}
		reopens = 0

		now := r.now()
		if frame.CapturedAt.IsZero() {
			frame.CapturedAt = now
		}
		buffer = append(buffer, frame)
		r.recordFrame(frame, len(buffer))

		if r.preview != nil {
			r.preview.Offer(frame)
		}

		if now.Sub(segmentStart) >= r.opts.Interval {
			// Swap the buffer out before encoding so the flushed segment is
			// exactly the frames captured up to now.
			frames := buffer
			buffer = make([]models.Frame, 0, cap(frames))

			r.flush(context.WithoutCancel(ctx), frames, segmentStart, now)

			segmentStart = now
			r.mu.Lock()
			r.segmentStart = now
			r.mu.Unlock()
		}
	}
}

// recoverSource re-opens the source after the failed read readErr. It
// returns false when the loop must stop. The terminal error wraps readErr
// and, when the last re-open failed, ErrSourceUnavailable and its cause.
func (r *Recorder) recoverSource(ctx context.Context, reopens *int, readErr error) bool {
	var openErr error
	for {
		if *reopens >= r.opts.ReopenAttempts {
			if openErr != nil {
				r.fail(fmt.Errorf("%w: %w: gave up after %d re-open attempts: %w (last read: %w)",
					ErrFrameRead, ErrSourceUnavailable, *reopens, openErr, readErr))
			} else {
				r.fail(fmt.Errorf("%w: gave up after %d re-open attempts: %w", ErrFrameRead, *reopens, readErr))
			}
			return false
		}
		*reopens++

		delay := reopenBackoff(*reopens, r.opts.ReopenDelay, r.opts.MaxReopenDelay)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return false
			}
		}

		err := r.source.Open(ctx)
		r.recordReopen(err == nil)
		if err == nil {
			r.applySize(r.source)
			r.log.WithField("attempt", *reopens).Info("Capture source re-opened")
			return true
		}

		if ctx.Err() != nil {
			return false
		}
		openErr = err
		r.log.WithError(err).WithFields(logrus.Fields{
			"attempt":      *reopens,
			"max_attempts": r.opts.ReopenAttempts,
		}).Warn("Could not re-open capture source")
	}
}

// flush encodes one segment and hands it to the sink. Failures are logged
// and never stop the loop.
func (r *Recorder) flush(ctx context.Context, frames []models.Frame, start, end time.Time) {
	began := time.Now()

	fps := r.source.FPS()
	if fps <= 0 {
		fps = r.opts.DefaultFPS
	}

	fileName := naming.ClipFileName(r.opts.FilePrefix, start, r.encoder.Extension())
	log := r.log.WithFields(logrus.Fields{
		"clip":   fileName,
		"frames": len(frames),
	})

	data, err := r.encoder.Encode(ctx, frames, fps)
	if err != nil {
		r.mu.Lock()
		r.stats.EncodeErrors++
		r.stats.FramesPending = 0
		r.mu.Unlock()
		r.metrics.RecordEncodeError()
		r.metrics.FramesPending.Set(0)
		log.WithError(fmt.Errorf("%w: %w", ErrEncode, err)).Error("Skipping segment")
		return
	}

	width, height := r.frameSize(frames)
	meta := models.NewClipMetadata(fileName, start, end, len(frames), fps, width, height)
	clip := &models.Clip{
		FileName:    fileName,
		Data:        data,
		ContentType: r.encoder.ContentType(),
	}

	sinkErr := r.sink.Emit(ctx, clip, meta)

	r.mu.Lock()
	r.stats.ClipsFlushed++
	r.stats.FramesFlushed += uint64(len(frames))
	r.stats.FramesPending = 0
	r.stats.LastClip = fileName
	if sinkErr != nil {
		r.stats.SinkErrors++
	}
	r.mu.Unlock()

	r.metrics.RecordClip(meta.Duration, len(frames), len(data), time.Since(began).Seconds())

	if sinkErr != nil {
		log.WithError(fmt.Errorf("%w: %w", ErrSink, sinkErr)).Error("Clip not delivered")
		return
	}

	log.WithFields(logrus.Fields{
		"duration": meta.Duration,
		"size_kb":  fmt.Sprintf("%.2f", float64(len(data))/1024),
	}).Info("Clip flushed")
}

// frameSize returns the clip resolution, falling back to the requested size
func (r *Recorder) frameSize(frames []models.Frame) (float64, float64) {
	if len(frames) > 0 && frames[0].Width > 0 && frames[0].Height > 0 {
		return float64(frames[0].Width), float64(frames[0].Height)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts.Width, r.opts.Height
}

func (r *Recorder) drainCommands() {
	for {
		select {
		case cmd := <-r.commands:
			if err := cmd(r.source); err != nil {
				r.log.WithError(err).Warn("Recorder command failed")
			}
		default:
			return
		}
	}
}

func (r *Recorder) applySize(src Source) {
	w, h := r.opts.Width, r.opts.Height
	if w <= 0 || h <= 0 {
		return
	}
	if err := src.SetSize(w, h); err != nil {
		r.log.WithError(err).Warn("Could not set capture size")
	}
}

// fail records the terminal error and moves the recorder to Stopping
func (r *Recorder) fail(err error) {
	r.mu.Lock()
	r.err = err
	if r.state == models.RecorderStateRunning {
		r.setStateLocked(models.RecorderStateStopping)
	}
	r.mu.Unlock()

	r.running.Store(false)
	r.log.WithError(err).Error("Capture loop stopping")
}

// release closes the source and returns the recorder to Idle. It runs once
// per session, on the loop goroutine.
func (r *Recorder) release() {
	if err := r.source.Close(); err != nil {
		r.log.WithError(err).Warn("Error releasing capture source")
	}

	r.mu.Lock()
	r.stats.FramesPending = 0
	r.setStateLocked(models.RecorderStateIdle)
	cancel := r.cancel
	r.mu.Unlock()

	r.running.Store(false)
	if cancel != nil {
		cancel()
	}
	r.metrics.FramesPending.Set(0)
	r.log.Info("Recording stopped")
}

func (r *Recorder) setStateLocked(state models.RecorderState) {
	r.state = state
	r.metrics.RecordState(state)
}

func (r *Recorder) segmentSnapshot() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.segmentStart
}

func (r *Recorder) recordFrame(frame models.Frame, pending int) {
	r.mu.Lock()
	r.stats.FramesCaptured++
	r.stats.FramesPending = pending
	r.stats.LastFrameTime = frame.CapturedAt
	r.mu.Unlock()
	r.metrics.RecordFrame(pending)
}

func (r *Recorder) recordReadFailure() {
	r.mu.Lock()
	r.stats.ReadFailures++
	r.mu.Unlock()
	r.metrics.RecordReadFailure()
}

func (r *Recorder) recordReopen(ok bool) {
	r.mu.Lock()
	r.stats.Reopens++
	r.mu.Unlock()
	r.metrics.RecordReopen(ok)
}

// reopenBackoff returns base * 2^(attempt-1), capped at max
func reopenBackoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// IsTerminal reports whether err ended a capture session
func IsTerminal(err error) bool {
	return errors.Is(err, ErrFrameRead) || errors.Is(err, ErrSourceUnavailable)
}
