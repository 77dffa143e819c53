package vision

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"camclip/internal/preview"
	"camclip/pkg/models"
)

// OpenCVEncoder writes clips with cv::VideoWriter
type OpenCVEncoder struct {
	Codec   string // FourCC, default "mp4v"
	TempDir string
}

// Extension implements segmenter.Encoder
func (e *OpenCVEncoder) Extension() string { return "mp4" }

// ContentType implements segmenter.Encoder
func (e *OpenCVEncoder) ContentType() string { return "video/mp4" }

// Encode writes frames to a temporary file and returns its bytes
func (e *OpenCVEncoder) Encode(ctx context.Context, frames []models.Frame, fps float64) ([]byte, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames to encode")
	}
	codec := e.Codec
	if codec == "" {
		codec = "mp4v"
	}

	width, height := frames[0].Width, frames[0].Height

	tmp, err := os.CreateTemp(e.TempDir, "camclip-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	tmp.Close()
	defer os.Remove(name)

	writer, err := gocv.VideoWriterFile(name, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open video writer: %w", err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("video writer for codec %s did not open", codec)
	}

	written := 0
	for i := range frames {
		if ctx.Err() != nil {
			writer.Close()
			return nil, ctx.Err()
		}
		f := &frames[i]
		if f.Width != width || f.Height != height || !f.Valid() {
			continue
		}

		mat, err := frameToMat(*f)
		if err != nil {
			continue
		}
		err = writer.Write(mat)
		mat.Close()
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("failed to write frame %d: %w", i, err)
		}
		written++
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize clip: %w", err)
	}
	if written == 0 {
		return nil, errors.New("no frame could be written")
	}

	return os.ReadFile(name)
}

// JPEGEncoder returns a preview encoder built on cv::imencode
func JPEGEncoder(quality int) preview.EncodeFunc {
	return func(frame models.Frame) ([]byte, error) {
		mat, err := frameToMat(frame)
		if err != nil {
			return nil, err
		}
		defer mat.Close()

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
		if err != nil {
			return nil, err
		}
		defer buf.Close()

		// The native buffer is freed on Close
		out := make([]byte, buf.Len())
		copy(out, buf.GetBytes())
		return out, nil
	}
}

func frameToMat(f models.Frame) (gocv.Mat, error) {
	if !f.Valid() || f.Channels != 3 {
		return gocv.Mat{}, fmt.Errorf("unsupported frame %dx%dx%d", f.Width, f.Height, f.Channels)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
}
