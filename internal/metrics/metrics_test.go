package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"camclip/pkg/models"
)

func TestRecordClip(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordFrame(1)
	m.RecordFrame(2)
	m.RecordClip(2.0, 2, 4096, 0.1)

	if got := testutil.ToFloat64(m.FramesCaptured); got != 2 {
		t.Errorf("FramesCaptured = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ClipsFlushed); got != 1 {
		t.Errorf("ClipsFlushed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FramesPending); got != 0 {
		t.Errorf("FramesPending = %v, want 0 after flush", got)
	}
}

func TestRecordState(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordState(models.RecorderStateRunning)
	if got := testutil.ToFloat64(m.RecorderState.WithLabelValues("running")); got != 1 {
		t.Errorf("running gauge = %v, want 1", got)
	}

	m.RecordState(models.RecorderStateIdle)
	if got := testutil.ToFloat64(m.RecorderState.WithLabelValues("running")); got != 0 {
		t.Errorf("running gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.RecorderState.WithLabelValues("idle")); got != 1 {
		t.Errorf("idle gauge = %v, want 1", got)
	}
}

func TestSinkCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSinkWrite("local")
	m.RecordSinkError("remote")
	m.RecordSinkError("remote")
	m.RecordReopen(false)

	if got := testutil.ToFloat64(m.SinkWrites.WithLabelValues("local")); got != 1 {
		t.Errorf("local writes = %v", got)
	}
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("remote")); got != 2 {
		t.Errorf("remote errors = %v", got)
	}
	if got := testutil.ToFloat64(m.Reopens.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed reopens = %v", got)
	}
}

func TestStatusCodeToString(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 302: "3xx", 404: "4xx", 503: "5xx", 0: "unknown"}
	for code, want := range tests {
		if got := statusCodeToString(code); got != want {
			t.Errorf("statusCodeToString(%d) = %q, want %q", code, got, want)
		}
	}
}
