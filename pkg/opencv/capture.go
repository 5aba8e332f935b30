package opencv

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"gocv.io/x/gocv"
)

// Capture opens local cameras through cv::VideoCapture.
type Capture struct {
	Width     int
	Height    int
	Framerate int
}

// NewCapture returns an opener that requests the configured frame size.
func NewCapture(cfg camera.Config) *Capture {
	return &Capture{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Framerate: cfg.Framerate,
	}
}

// Open implements camera.Opener.
func (c *Capture) Open(index int, backend camera.Backend) (camera.Device, error) {
	vc, err := gocv.OpenVideoCaptureWithAPI(index, gocv.VideoCaptureAPI(backend.API))
	if err != nil {
		return nil, fmt.Errorf("open camera %d/%s: %w", index, backend.Name, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d/%s: not opened", index, backend.Name)
	}

	if c.Width > 0 && c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &captureDevice{vc: vc, img: gocv.NewMat()}, nil
}

type captureDevice struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	img gocv.Mat
}

func (d *captureDevice) Read() (frame.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return frame.Frame{}, camera.ErrClosed
	}
	if ok := d.vc.Read(&d.img); !ok || d.img.Empty() {
		return frame.Frame{}, camera.ErrDeadFrame
	}
	return FromMat(d.img, 0, time.Now())
}

func (d *captureDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	d.img.Close()
	d.vc = nil
	return err
}
