package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camclip/pkg/models"
)

const (
	keyEsc = 27
	keyQ   = 'q'
)

// ShowLive displays frames in a window until the channel closes, ctx is
// cancelled, or the user presses q or Esc. HighGUI requires this to run on
// the main OS thread on some platforms.
func ShowLive(ctx context.Context, title string, frames <-chan models.Frame, log logrus.FieldLogger) {
	window := gocv.NewWindow(title)
	defer window.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			mat, err := frameToMat(f)
			if err != nil {
				log.WithError(err).Debug("Skipping preview frame")
				continue
			}
			window.IMShow(mat)
			mat.Close()

			if key := window.WaitKey(1); key == keyQ || key == keyEsc {
				return
			}
		}
	}
}

// PlayFile plays a clip in a window at its native frame rate
func PlayFile(ctx context.Context, path string, log logrus.FieldLogger) error {
	video, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer video.Close()

	delay := 50
	if fps := video.Get(gocv.VideoCaptureFPS); fps > 0 {
		delay = int(1000 / fps)
	}

	window := gocv.NewWindow(filepath.Base(path))
	defer window.Close()

	img := gocv.NewMat()
	defer img.Close()

	frames := 0
	for ctx.Err() == nil {
		if ok := video.Read(&img); !ok || img.Empty() {
			break
		}
		frames++
		window.IMShow(img)
		if key := window.WaitKey(delay); key == keyQ || key == keyEsc {
			break
		}
	}

	log.WithFields(logrus.Fields{"clip": path, "frames": frames}).Info("Playback finished")
	return nil
}

// PlayPath plays a single clip or every .mp4 of a directory in name order
func PlayPath(ctx context.Context, path string, log logrus.FieldLogger) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return PlayFile(ctx, path, log)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	var clips []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".mp4") {
			clips = append(clips, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(clips)

	if len(clips) == 0 {
		return fmt.Errorf("no clips in %s", path)
	}
	for _, clip := range clips {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := PlayFile(ctx, clip, log); err != nil {
			log.WithError(err).WithField("clip", clip).Warn("Could not play clip")
		}
	}
	return nil
}
