package models

import "time"

// RecorderState represents the lifecycle state of a recorder
type RecorderState string

const (
	RecorderStateIdle     RecorderState = "idle"
	RecorderStateRunning  RecorderState = "running"
	RecorderStateStopping RecorderState = "stopping"
)

// RecorderStats tracks capture statistics
type RecorderStats struct {
	FramesCaptured uint64    `json:"framesCaptured"`
	FramesPending  int       `json:"framesPending"` // Frames buffered for the current segment
	ClipsFlushed   uint64    `json:"clipsFlushed"`
	FramesFlushed  uint64    `json:"framesFlushed"`
	EncodeErrors   uint64    `json:"encodeErrors"`
	SinkErrors     uint64    `json:"sinkErrors"`
	ReadFailures   uint64    `json:"readFailures"`
	Reopens        uint64    `json:"reopens"`
	LastFrameTime  time.Time `json:"lastFrameTime,omitempty"`
	LastClip       string    `json:"lastClip,omitempty"`
}

// RecorderStatus is a point-in-time snapshot of a recorder, safe to hand to
// other goroutines
type RecorderStatus struct {
	SessionID    string        `json:"sessionId"`
	State        RecorderState `json:"state"`
	CameraID     int           `json:"cameraId"`
	Interval     float64       `json:"interval"` // seconds
	StartedAt    string        `json:"startedAt,omitempty"`
	SegmentStart string        `json:"segmentStart,omitempty"`
	Error        string        `json:"error,omitempty"`
	Stats        RecorderStats `json:"stats"`
}

// ClipInfo describes a stored clip returned by the control API
type ClipInfo struct {
	FileName string `json:"fileName"`
	URL      string `json:"url"`
}

// ClipListResponse represents a list of stored clips
type ClipListResponse struct {
	Clips []ClipInfo `json:"clips"`
	Total int        `json:"total"`
}

// ResizeRequest asks the recorder to change the capture size
type ResizeRequest struct {
	Width  float64 `json:"width" binding:"required,gt=0"`
	Height float64 `json:"height" binding:"required,gt=0"`
}
