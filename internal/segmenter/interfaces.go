package segmenter

import (
	"context"

	"camclip/pkg/models"
)

// Source is a capture device. Implementations are used by a single
// goroutine (the capture loop) and need not be safe for concurrent use.
type Source interface {
	// Open opens the device, releasing any handle left from a previous Open
	Open(ctx context.Context) error

	// Read blocks until the next frame is available or ctx is done
	Read(ctx context.Context) (models.Frame, error)

	// FPS returns the frame rate reported by the device, 0 when unknown
	FPS() float64

	// SetSize requests a capture resolution
	SetSize(width, height float64) error

	// Close releases the device
	Close() error
}

// Encoder turns buffered frames into an encoded clip
type Encoder interface {
	// Encode muxes frames at the given frame rate and returns the container bytes
	Encode(ctx context.Context, frames []models.Frame, fps float64) ([]byte, error)

	// Extension returns the file extension of encoded clips, without the dot
	Extension() string

	// ContentType returns the MIME type of encoded clips
	ContentType() string
}

// ClipSink is a destination for completed clips. Ownership of clip and meta
// passes to the sink.
type ClipSink interface {
	Emit(ctx context.Context, clip *models.Clip, meta *models.ClipMetadata) error
}

// FramePublisher receives every captured frame. Offer must not block.
type FramePublisher interface {
	Offer(frame models.Frame)
}
