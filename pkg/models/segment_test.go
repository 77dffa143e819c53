package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestRoundDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want float64
	}{
		{name: "exact", d: 2 * time.Second, want: 2},
		{name: "rounds down", d: 2*time.Second + 4*time.Millisecond, want: 2},
		{name: "rounds up", d: 2*time.Second + 5*time.Millisecond, want: 2.01},
		{name: "sub second", d: 333 * time.Millisecond, want: 0.33},
		{name: "zero", d: 0, want: 0},
		{name: "negative clamps to zero", d: -time.Second, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundDuration(tt.d); got != tt.want {
				t.Errorf("RoundDuration(%v) = %v, want %v", tt.d, got, tt.want)
			}
		})
	}
}

func TestNewClipMetadata(t *testing.T) {
	start := time.Date(2024, 5, 28, 8, 36, 37, 123456000, time.Local)
	end := start.Add(10*time.Second + 7*time.Millisecond)

	meta := NewClipMetadata("clip.mp4", start, end, 200, 20, 640, 480)

	if meta.Duration != 10.01 {
		t.Errorf("Duration = %v, want 10.01", meta.Duration)
	}
	if meta.FrameCount != 200 {
		t.Errorf("FrameCount = %d, want 200", meta.FrameCount)
	}
	if !meta.StartTime.Equal(start) || !meta.EndTime.Equal(end) {
		t.Errorf("unexpected window %v - %v", meta.StartTime, meta.EndTime)
	}

	if m := NewClipMetadata("x", end, start, -1, 20, 0, 0); m.Duration != 0 || m.FrameCount != 0 {
		t.Errorf("expected clamped metadata, got %+v", m)
	}
}

func TestClipMetadataJSON(t *testing.T) {
	start := time.Date(2024, 5, 28, 8, 36, 37, 500000000, time.Local)
	meta := NewClipMetadata("2024_05_28_08_36_37_500000.mp4", start, start.Add(2*time.Second), 40, 20, 640, 480)

	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}

	s := string(data)
	if !strings.Contains(s, `"start_time":"2024-05-28 08:36:37.500000"`) {
		t.Errorf("unexpected start_time encoding: %s", s)
	}
	if !strings.HasPrefix(s, `{"file_name":`) {
		t.Errorf("file_name should be the first key: %s", s)
	}

	var decoded ClipMetadata
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.FileName != meta.FileName || decoded.FrameCount != meta.FrameCount ||
		decoded.Duration != meta.Duration || decoded.FPS != meta.FPS {
		t.Errorf("decoded = %+v, want %+v", decoded, *meta)
	}
	if !decoded.StartTime.Equal(meta.StartTime.Time) || !decoded.EndTime.Equal(meta.EndTime.Time) {
		t.Errorf("timestamps changed: %v %v", decoded.StartTime, decoded.EndTime)
	}
}

func TestTimestampUnmarshalInvalid(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for malformed timestamp")
	}
	if err := json.Unmarshal([]byte(`null`), &ts); err != nil || !ts.IsZero() {
		t.Errorf("null should decode to zero time, got %v (%v)", ts, err)
	}
}

func TestFrameValid(t *testing.T) {
	f := Frame{Data: make([]byte, 2*2*3), Width: 2, Height: 2, Channels: 3}
	if !f.Valid() {
		t.Error("expected frame to be valid")
	}
	f.Data = f.Data[:5]
	if f.Valid() {
		t.Error("truncated frame should be invalid")
	}
}

func TestNewRemotePayload(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	meta := NewClipMetadata("a.mp4", start, start.Add(3*time.Second), 60, 20, 0, 0)

	p := NewRemotePayload("livefeed", "a_mp4", meta)
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}

	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"dbms", "table", "file_name", "readings"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("payload missing %q: %s", key, data)
		}
	}
	readings := generic["readings"].(map[string]any)
	if readings["duration"].(float64) != 3 {
		t.Errorf("readings.duration = %v", readings["duration"])
	}
	if _, ok := generic["raw_video"]; ok {
		t.Error("raw_video should be omitted when empty")
	}
}

func TestValidDimension(t *testing.T) {
	tests := []struct {
		v    float64
		want bool
	}{
		{v: 640, want: true},
		{v: 0.5, want: true},
		{v: 0, want: false},
		{v: -1, want: false},
		{v: math.NaN(), want: false},
		{v: math.Inf(1), want: false},
		{v: math.Inf(-1), want: false},
	}

	for _, tt := range tests {
		if got := ValidDimension(tt.v); got != tt.want {
			t.Errorf("ValidDimension(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
