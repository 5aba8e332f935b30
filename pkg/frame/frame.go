// Package frame defines the captured image unit shared by the camera,
// the detectors and the session loop.
package frame

import (
	"image"
	"time"
)

// Channels is the number of bytes per pixel (BGR, 8 bits each).
const Channels = 3

// Frame is one captured image plus its acquisition metadata.
//
// A Frame is never mutated after capture. Pixels may be shared between
// copies of the struct, so anything that draws on an image must work on
// Clone().
type Frame struct {
	Seq        uint64    // Sequence number assigned by the source
	CapturedAt time.Time // Acquisition timestamp
	Width      int       // Width in pixels
	Height     int       // Height in pixels
	Pixels     []byte    // BGR, row-major, Width*Height*Channels bytes

	// Placeholder is set on blank frames substituted while the camera
	// is reconnecting.
	Placeholder bool
}

// New wraps a pixel buffer as a frame.
func New(seq uint64, at time.Time, width, height int, pixels []byte) Frame {
	return Frame{
		Seq:        seq,
		CapturedAt: at,
		Width:      width,
		Height:     height,
		Pixels:     pixels,
	}
}

// Blank returns an all-black placeholder frame.
func Blank(seq uint64, at time.Time, width, height int) Frame {
	f := New(seq, at, width, height, make([]byte, width*height*Channels))
	f.Placeholder = true
	return f
}

// Empty reports whether the frame carries no usable pixels.
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pixels) < f.Width*f.Height*Channels
}

// Bounds returns the frame rectangle in pixel space.
func (f Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Mean returns the average byte value over all channels (0-255).
// Some drivers emit black frames right after open; those have a mean
// close to zero.
func (f Frame) Mean() float64 {
	if f.Empty() {
		return 0
	}
	n := f.Width * f.Height * Channels
	var sum uint64
	for _, b := range f.Pixels[:n] {
		sum += uint64(b)
	}
	return float64(sum) / float64(n)
}

// Clone returns a deep copy that may be drawn on.
func (f Frame) Clone() Frame {
	c := f
	c.Pixels = make([]byte, len(f.Pixels))
	copy(c.Pixels, f.Pixels)
	return c
}

// Crop copies the region r (clipped to the frame) into a new frame.
// The result keeps the parent's sequence number and timestamp.
func (f Frame) Crop(r image.Rectangle) Frame {
	r = r.Intersect(f.Bounds())
	if r.Empty() || f.Empty() {
		return Frame{Seq: f.Seq, CapturedAt: f.CapturedAt}
	}

	w, h := r.Dx(), r.Dy()
	out := make([]byte, w*h*Channels)
	rowBytes := w * Channels
	for y := 0; y < h; y++ {
		src := ((r.Min.Y+y)*f.Width + r.Min.X) * Channels
		copy(out[y*rowBytes:(y+1)*rowBytes], f.Pixels[src:src+rowBytes])
	}

	c := New(f.Seq, f.CapturedAt, w, h, out)
	c.Placeholder = f.Placeholder
	return c
}
