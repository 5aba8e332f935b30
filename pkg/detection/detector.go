// Package detection normalizes raw detector output into detection records
// and schedules detector evaluation for the session loop.
package detection

import (
	"fmt"
	"image"
	"sort"

	"github.com/teslashibe/go-proctor/pkg/frame"
)

// Box is an axis-aligned bounding box in pixel space, (X1,Y1) top-left
// inclusive and (X2,Y2) bottom-right exclusive.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// BoxFromRect converts an image.Rectangle.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Width returns the box width in pixels.
func (b Box) Width() int {
	return b.X2 - b.X1
}

// Height returns the box height in pixels.
func (b Box) Height() int {
	return b.Y2 - b.Y1
}

// Area returns the area of the bounding box
func (b Box) Area() int {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

// Center returns the center point of the box
func (b Box) Center() (x, y float64) {
	return float64(b.X1+b.X2) / 2, float64(b.Y1+b.Y2) / 2
}

// Translate shifts the box by (dx, dy).
func (b Box) Translate(dx, dy int) Box {
	return Box{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Record is one normalized detection.
type Record struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0-1
	Box        Box     `json:"box"`
}

// Kind tags the detector variant.
type Kind int

const (
	KindFace Kind = iota
	KindEye
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindFace:
		return "face"
	case KindEye:
		return "eye"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Detector is the capability shared by every detector backend.
type Detector interface {
	// Detect returns raw detections in the frame's pixel space.
	Detect(f frame.Frame) ([]Record, error)

	// Kind reports which variant this detector implements.
	Kind() Kind

	// Close releases resources
	Close() error
}

// DetectorError wraps a failed detector call. The adapters return it next
// to an empty result so the caller can carry on with no detections.
type DetectorError struct {
	Kind Kind
	Err  error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detection: %s detector: %v", e.Kind, e.Err)
}

func (e *DetectorError) Unwrap() error {
	return e.Err
}

// SortByArea orders records largest box first. Ties keep detector order.
func SortByArea(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Box.Area() > recs[j].Box.Area()
	})
}

// Labels returns the label of every record, in order.
func Labels(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Label
	}
	return out
}
