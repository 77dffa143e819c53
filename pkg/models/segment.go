package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TimestampLayout is the layout used for clip timestamps in the metadata log
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Timestamp is a wall-clock instant serialized with microsecond precision
type Timestamp struct {
	time.Time
}

// MarshalJSON encodes the timestamp using TimestampLayout
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(TimestampLayout) + `"`), nil
}

// UnmarshalJSON decodes a timestamp written by MarshalJSON
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// ClipMetadata describes one completed segment. It is built once per flush
// and never modified afterwards.
type ClipMetadata struct {
	FileName   string    `json:"file_name"`
	StartTime  Timestamp `json:"start_time"`
	EndTime    Timestamp `json:"end_time"`
	Duration   float64   `json:"duration"` // seconds, rounded to 2 decimals
	FrameCount int       `json:"frame_count"`
	FPS        float64   `json:"fps"`
	Width      float64   `json:"width,omitempty"`
	Height     float64   `json:"height,omitempty"`
}

// NewClipMetadata builds the metadata record for a segment spanning [start, end]
func NewClipMetadata(fileName string, start, end time.Time, frameCount int, fps, width, height float64) *ClipMetadata {
	if frameCount < 0 {
		frameCount = 0
	}

	return &ClipMetadata{
		FileName:   fileName,
		StartTime:  Timestamp{start},
		EndTime:    Timestamp{end},
		Duration:   RoundDuration(end.Sub(start)),
		FrameCount: frameCount,
		FPS:        fps,
		Width:      width,
		Height:     height,
	}
}

// RoundDuration converts d to seconds rounded to 2 decimals. Negative
// durations (clock stepped backwards) are reported as zero.
func RoundDuration(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return math.Round(d.Seconds()*100) / 100
}
