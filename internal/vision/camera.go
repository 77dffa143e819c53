// Package vision holds everything that talks to OpenCV: the camera
// capture source, the OpenCV clip encoder and the preview windows.
package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"camclip/pkg/models"
)

// MaxProbedCameras is the number of device indices DefaultCameraID tries
const MaxProbedCameras = 10

var (
	// ErrNotOpen is returned when reading from a camera that is not open
	ErrNotOpen = errors.New("camera not open")
	// ErrEmptyFrame is returned when the device delivered no image
	ErrEmptyFrame = errors.New("empty frame")
)

// Camera is a capture source backed by an OpenCV VideoCapture device
type Camera struct {
	id int

	mu  sync.Mutex
	vc  *gocv.VideoCapture
	img gocv.Mat
}

// NewCamera returns a closed camera for device id
func NewCamera(id int) *Camera {
	return &Camera{id: id}
}

// ID returns the device index
func (c *Camera) ID() int { return c.id }

// Open opens the device. An already open device is released first, so Open
// doubles as re-open after read failures.
func (c *Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	c.releaseLocked()

	vc, err := gocv.OpenVideoCapture(c.id)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("camera %d did not open", c.id)
	}

	c.vc = vc
	c.img = gocv.NewMat()
	return nil
}

// Read grabs the next frame. The pixel data is copied out of the OpenCV
// buffer, the returned frame stays valid after the next Read.
func (c *Camera) Read(ctx context.Context) (models.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return models.Frame{}, ErrNotOpen
	}
	if ok := c.vc.Read(&c.img); !ok || c.img.Empty() {
		return models.Frame{}, ErrEmptyFrame
	}

	return models.Frame{
		Data:       c.img.ToBytes(),
		Width:      c.img.Cols(),
		Height:     c.img.Rows(),
		Channels:   c.img.Channels(),
		CapturedAt: time.Now(),
	}, nil
}

// FPS returns the frame rate reported by the driver, 0 when unknown
func (c *Camera) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return 0
	}
	return c.vc.Get(gocv.VideoCaptureFPS)
}

// SetSize requests a capture resolution. Drivers may pick the closest mode.
func (c *Camera) SetSize(width, height float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return ErrNotOpen
	}
	c.vc.Set(gocv.VideoCaptureFrameWidth, width)
	c.vc.Set(gocv.VideoCaptureFrameHeight, height)
	return nil
}

// Close releases the device
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked()
}

func (c *Camera) releaseLocked() error {
	var err error
	if c.vc != nil {
		err = c.vc.Close()
		c.vc = nil
		c.img.Close()
	}
	return err
}

// DefaultCameraID returns the first device index in [0, MaxProbedCameras)
// that opens
func DefaultCameraID() (int, error) {
	for id := 0; id < MaxProbedCameras; id++ {
		vc, err := gocv.OpenVideoCapture(id)
		if err != nil {
			continue
		}
		opened := vc.IsOpened()
		vc.Close()
		if opened {
			return id, nil
		}
	}
	return -1, fmt.Errorf("no camera found in indices 0-%d", MaxProbedCameras-1)
}
