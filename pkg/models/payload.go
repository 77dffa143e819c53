package models

// Readings is the time window block of a remote payload
type Readings struct {
	StartTime Timestamp `json:"start_time"`
	EndTime   Timestamp `json:"end_time"`
	Duration  float64   `json:"duration"`
}

// RemotePayload is the JSON body submitted to the ingestion endpoint
type RemotePayload struct {
	DBMS       string   `json:"dbms"`
	Table      string   `json:"table"`
	FileName   string   `json:"file_name"`
	Readings   Readings `json:"readings"`
	FrameCount int      `json:"frame_count"`
	FPS        float64  `json:"fps"`
	Width      float64  `json:"width,omitempty"`
	Height     float64  `json:"height,omitempty"`
	RawVideo   string   `json:"raw_video,omitempty"` // base64 encoded clip
}

// NewRemotePayload builds a payload from clip metadata
func NewRemotePayload(dbms, table string, meta *ClipMetadata) *RemotePayload {
	return &RemotePayload{
		DBMS:     dbms,
		Table:    table,
		FileName: meta.FileName,
		Readings: Readings{
			StartTime: meta.StartTime,
			EndTime:   meta.EndTime,
			Duration:  meta.Duration,
		},
		FrameCount: meta.FrameCount,
		FPS:        meta.FPS,
		Width:      meta.Width,
		Height:     meta.Height,
	}
}
