// Package encoder turns buffered raw frames into encoded clips by piping
// them through an external ffmpeg process.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"camclip/pkg/models"
)

// ErrNoFrames is returned when a segment has nothing to encode
var ErrNoFrames = errors.New("no frames to encode")

// FFmpegOptions configures an FFmpegEncoder
type FFmpegOptions struct {
	Binary  string // ffmpeg executable, default "ffmpeg"
	Codec   string // default libx264
	Preset  string // default veryfast
	TempDir string // default os.TempDir()
}

// FFmpegEncoder encodes bgr24 frames into an H.264 mp4
type FFmpegEncoder struct {
	opts FFmpegOptions
	log  logrus.FieldLogger
}

// NewFFmpegEncoder creates an encoder
func NewFFmpegEncoder(opts FFmpegOptions, log logrus.FieldLogger) *FFmpegEncoder {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Codec == "" {
		opts.Codec = "libx264"
	}
	if opts.Preset == "" {
		opts.Preset = "veryfast"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FFmpegEncoder{opts: opts, log: log.WithField("encoder", "ffmpeg")}
}

// Extension implements segmenter.Encoder
func (e *FFmpegEncoder) Extension() string { return "mp4" }

// ContentType implements segmenter.Encoder
func (e *FFmpegEncoder) ContentType() string { return "video/mp4" }

// Args returns the ffmpeg arguments that read raw frames from stdin and
// write an mp4 to output
func (e *FFmpegEncoder) Args(output string, width, height int, fps float64) []string {
	return ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "bgr24",
		"s":         fmt.Sprintf("%dx%d", width, height),
		"framerate": fmt.Sprintf("%.3f", fps),
	}).Output(output, ffmpeg.KwArgs{
		"c:v":      e.opts.Codec,
		"preset":   e.opts.Preset,
		"pix_fmt":  "yuv420p",
		"movflags": "+faststart",
	}).GlobalArgs("-hide_banner", "-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

// Encode pipes frames into ffmpeg and returns the encoded mp4. Frames whose
// size differs from the first frame (a resize mid-segment) are skipped.
func (e *FFmpegEncoder) Encode(ctx context.Context, frames []models.Frame, fps float64) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	width, height := frames[0].Width, frames[0].Height
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	input, skipped := rawInput(frames, width, height)
	if skipped > 0 {
		e.log.WithField("skipped", skipped).Warn("Frames with a different size left out of the clip")
	}

	tmp, err := os.CreateTemp(e.opts.TempDir, "camclip-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	output := tmp.Name()
	tmp.Close()
	defer os.Remove(output)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.opts.Binary, e.Args(output, width, height, fps)...)
	cmd.Stdin = input
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded clip: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ffmpeg produced an empty clip")
	}
	return data, nil
}

// rawInput concatenates the pixel data of every frame matching width x height
func rawInput(frames []models.Frame, width, height int) (io.Reader, int) {
	readers := make([]io.Reader, 0, len(frames))
	skipped := 0
	for i := range frames {
		f := &frames[i]
		if f.Width != width || f.Height != height || !f.Valid() {
			skipped++
			continue
		}
		readers = append(readers, bytes.NewReader(f.Data))
	}
	return io.MultiReader(readers...), skipped
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
