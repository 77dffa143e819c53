package encoder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"camclip/internal/logging"
	"camclip/pkg/models"
)

func frame(w, h int, fill byte) models.Frame {
	return models.Frame{Data: bytes.Repeat([]byte{fill}, w*h*3), Width: w, Height: h, Channels: 3}
}

func containsPair(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestFFmpegArgs(t *testing.T) {
	e := NewFFmpegEncoder(FFmpegOptions{}, logging.Discard())
	args := e.Args("/tmp/out.mp4", 640, 480, 20)

	for _, pair := range [][2]string{
		{"-f", "rawvideo"},
		{"-pix_fmt", "bgr24"},
		{"-s", "640x480"},
		{"-framerate", "20.000"},
		{"-i", "pipe:"},
		{"-c:v", "libx264"},
		{"-pix_fmt", "yuv420p"},
	} {
		if !containsPair(args, pair[0], pair[1]) {
			t.Errorf("args %v missing %s %s", args, pair[0], pair[1])
		}
	}

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "/tmp/out.mp4") || !strings.Contains(joined, "-y") {
		t.Errorf("args %v missing output or overwrite flag", args)
	}
}

func TestEncodeNoFrames(t *testing.T) {
	e := NewFFmpegEncoder(FFmpegOptions{}, logging.Discard())
	if _, err := e.Encode(context.Background(), nil, 20); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Encode(nil) error = %v, want ErrNoFrames", err)
	}
}

// fakeFFmpeg writes a script that copies stdin to the .mp4 argument
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for ffmpeg")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEncodePipesFrames(t *testing.T) {
	bin := fakeFFmpeg(t, `for a; do case "$a" in *.mp4) out="$a";; esac; done
cat > "$out"`)
	e := NewFFmpegEncoder(FFmpegOptions{Binary: bin, TempDir: t.TempDir()}, logging.Discard())

	frames := []models.Frame{frame(2, 2, 1), frame(4, 4, 9), frame(2, 2, 2)}
	data, err := e.Encode(context.Background(), frames, 20)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := append(bytes.Repeat([]byte{1}, 12), bytes.Repeat([]byte{2}, 12)...)
	if !bytes.Equal(data, want) {
		t.Errorf("ffmpeg received %v, want frames of the first size only", data)
	}
}

func TestEncodeReportsFailure(t *testing.T) {
	bin := fakeFFmpeg(t, `echo "Unknown encoder 'libx264'" >&2
exit 1`)
	e := NewFFmpegEncoder(FFmpegOptions{Binary: bin, TempDir: t.TempDir()}, logging.Discard())

	_, err := e.Encode(context.Background(), []models.Frame{frame(2, 2, 0)}, 20)
	if err == nil || !strings.Contains(err.Error(), "Unknown encoder") {
		t.Errorf("Encode() error = %v, want ffmpeg stderr", err)
	}
}
