package models

import (
	"math"
	"time"
)

// Frame represents a single decoded video frame pulled from a capture source
type Frame struct {
	Data       []byte    // Raw pixel data, BGR interleaved, row-major
	Width      int       // Frame width in pixels
	Height     int       // Frame height in pixels
	Channels   int       // Bytes per pixel (3 for BGR)
	CapturedAt time.Time // When the frame was read from the source
}

// Size returns the expected byte length of the frame data
func (f *Frame) Size() int {
	return f.Width * f.Height * f.Channels
}

// Valid reports whether the frame carries a complete image
func (f *Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && f.Channels > 0 && len(f.Data) == f.Size()
}

// ValidDimension reports whether v can be used as a capture width or height.
// NaN and infinities are rejected.
func ValidDimension(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Clip is one encoded video segment
type Clip struct {
	FileName    string // Basename of the clip, also the storage key
	Data        []byte // Encoded container bytes
	ContentType string // e.g. "video/mp4"
}
