// Package preview hands live frames from the capture loop to observers: an
// MJPEG stream, a JPEG snapshot and window subscribers.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"

	"github.com/hybridgroup/mjpeg"
	"github.com/sirupsen/logrus"

	"camclip/internal/metrics"
	"camclip/pkg/models"
)

// EncodeFunc turns a raw frame into a JPEG image
type EncodeFunc func(frame models.Frame) ([]byte, error)

// Hub is a latest-wins mailbox between the capture loop and slow
// consumers. Offer never blocks; a frame not yet consumed is replaced by
// the next one.
type Hub struct {
	encode  EncodeFunc
	stream  *mjpeg.Stream
	metrics *metrics.Metrics
	log     logrus.FieldLogger

	latest chan models.Frame

	mu       sync.RWMutex
	snapshot []byte
	subs     map[int]chan models.Frame
	nextSub  int
}

// NewHub creates a hub. encode may be nil when only subscribers are needed.
func NewHub(encode EncodeFunc, m *metrics.Metrics, log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		encode:  encode,
		stream:  mjpeg.NewStream(),
		metrics: m,
		log:     log.WithField("component", "preview"),
		latest:  make(chan models.Frame, 1),
		subs:    make(map[int]chan models.Frame),
	}
}

// Offer implements segmenter.FramePublisher
func (h *Hub) Offer(frame models.Frame) {
	select {
	case h.latest <- frame:
		return
	default:
	}

	// Replace the pending frame
	select {
	case <-h.latest:
		h.dropped()
	default:
	}
	select {
	case h.latest <- frame:
	default:
		h.dropped()
	}
}

// Run delivers offered frames until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeSubscribers()
			return
		case frame := <-h.latest:
			h.deliver(frame)
		}
	}
}

func (h *Hub) deliver(frame models.Frame) {
	h.mu.RLock()
	for _, ch := range h.subs {
		offerLatest(ch, frame)
	}
	h.mu.RUnlock()

	if h.encode == nil {
		return
	}

	img, err := h.encode(frame)
	if err != nil {
		h.log.WithError(err).Debug("Could not encode preview frame")
		return
	}

	h.stream.UpdateJPEG(img)
	h.mu.Lock()
	h.snapshot = img
	h.mu.Unlock()
}

// Subscribe returns a channel receiving the most recent frames. Slow
// readers miss intermediate frames. The returned func unsubscribes.
func (h *Hub) Subscribe() (<-chan models.Frame, func()) {
	ch := make(chan models.Frame, 1)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

// Snapshot returns the latest encoded JPEG
func (h *Hub) Snapshot() ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot, h.snapshot != nil
}

// Stream returns the MJPEG multipart handler
func (h *Hub) Stream() http.Handler {
	return h.stream
}

func (h *Hub) closeSubscribers() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *Hub) dropped() {
	if h.metrics != nil {
		h.metrics.RecordPreviewDropped()
	}
}

func offerLatest(ch chan models.Frame, frame models.Frame) {
	select {
	case ch <- frame:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- frame:
	default:
	}
}

// JPEGEncoder returns an EncodeFunc built on image/jpeg
func JPEGEncoder(quality int) EncodeFunc {
	return func(frame models.Frame) ([]byte, error) {
		img, err := ToImage(frame)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// ToImage converts a BGR frame to an RGBA image
func ToImage(frame models.Frame) (*image.RGBA, error) {
	if !frame.Valid() || frame.Channels != 3 {
		return nil, fmt.Errorf("unsupported frame %dx%dx%d (%d bytes)", frame.Width, frame.Height, frame.Channels, len(frame.Data))
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for src, dst := 0, 0; src < len(frame.Data); src, dst = src+3, dst+4 {
		img.Pix[dst] = frame.Data[src+2]
		img.Pix[dst+1] = frame.Data[src+1]
		img.Pix[dst+2] = frame.Data[src]
		img.Pix[dst+3] = 0xff
	}
	return img, nil
}
