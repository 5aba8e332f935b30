// Package opencv binds the camera and detection seams to OpenCV through
// gocv. It is the only package that needs OpenCV at build time.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/teslashibe/go-proctor/pkg/frame"
	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned for frames or buffers without pixels.
var ErrEmptyImage = errors.New("opencv: empty image")

// ToMat copies a frame into a new BGR Mat. The caller closes it.
func ToMat(f frame.Frame) (gocv.Mat, error) {
	if f.Empty() {
		return gocv.NewMat(), ErrEmptyImage
	}
	n := f.Width * f.Height * frame.Channels
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pixels[:n])
}

// FromMat copies a BGR (or grayscale) Mat into a frame.
func FromMat(m gocv.Mat, seq uint64, at time.Time) (frame.Frame, error) {
	if m.Empty() {
		return frame.Frame{}, ErrEmptyImage
	}

	src := m
	switch m.Channels() {
	case 3:
	case 1:
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(m, &bgr, gocv.ColorGrayToBGR)
		src = bgr
	case 4:
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(m, &bgr, gocv.ColorBGRAToBGR)
		src = bgr
	default:
		return frame.Frame{}, fmt.Errorf("opencv: unsupported channel count %d", m.Channels())
	}

	// ToBytes copies, so the frame outlives the Mat.
	return frame.New(seq, at, src.Cols(), src.Rows(), src.ToBytes()), nil
}

// grayRegion returns an equalized grayscale copy of r within m.
func grayRegion(m gocv.Mat, r image.Rectangle) gocv.Mat {
	roi := m.Region(r)
	defer roi.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)
	return gray
}
