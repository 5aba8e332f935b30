package opencv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"gocv.io/x/gocv"
)

// CascadeConfig holds Haar cascade parameters.
type CascadeConfig struct {
	Path         string
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int // Square, in pixels
}

// DefaultFaceCascade returns the frontal face cascade defaults.
func DefaultFaceCascade() CascadeConfig {
	return CascadeConfig{
		Path:         "models/haarcascade_frontalface_default.xml",
		ScaleFactor:  1.2,
		MinNeighbors: 5,
		MinSize:      60,
	}
}

// DefaultEyeCascade returns the eye cascade defaults, tuned for face ROIs.
func DefaultEyeCascade() CascadeConfig {
	return CascadeConfig{
		Path:         "models/haarcascade_eye.xml",
		ScaleFactor:  1.1,
		MinNeighbors: 3,
		MinSize:      20,
	}
}

// CascadeDetector runs a Haar cascade over the grayscale frame.
// Cascades have no score, so every box is reported with confidence 1.
type CascadeDetector struct {
	cc     gocv.CascadeClassifier
	config CascadeConfig
	kind   detection.Kind
	label  string
	mu     sync.Mutex
}

// NewCascade loads a cascade for the given detector kind.
func NewCascade(kind detection.Kind, cfg CascadeConfig) (*CascadeDetector, error) {
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		return nil, fmt.Errorf("cascade file not found: %s", cfg.Path)
	}

	cc := gocv.NewCascadeClassifier()
	if !cc.Load(cfg.Path) {
		cc.Close()
		return nil, fmt.Errorf("failed to load cascade from %s", cfg.Path)
	}

	label := "face"
	if kind == detection.KindEye {
		label = "eye"
	}
	return &CascadeDetector{cc: cc, config: cfg, kind: kind, label: label}, nil
}

// Detect implements detection.Detector.
func (d *CascadeDetector) Detect(f frame.Frame) ([]detection.Record, error) {
	img, err := ToMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	gray := grayRegion(img, f.Bounds())
	defer gray.Close()

	d.mu.Lock()
	minSize := image.Pt(d.config.MinSize, d.config.MinSize)
	rects := d.cc.DetectMultiScaleWithParams(gray, d.config.ScaleFactor, d.config.MinNeighbors, 0, minSize, image.Pt(0, 0))
	d.mu.Unlock()

	recs := make([]detection.Record, 0, len(rects))
	for _, r := range rects {
		recs = append(recs, detection.Record{
			Label:      d.label,
			Confidence: 1,
			Box:        detection.BoxFromRect(r),
		})
	}
	return recs, nil
}

// Kind implements detection.Detector.
func (d *CascadeDetector) Kind() detection.Kind {
	return d.kind
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cc.Close()
}
