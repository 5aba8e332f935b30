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

// YuNetConfig holds YuNet face detector configuration.
type YuNetConfig struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence
	NMSThresh        float64
	InputWidth       int // Initial input size, updated per frame
	InputHeight      int
}

// DefaultYuNetConfig returns production defaults for YuNet.
func DefaultYuNetConfig() YuNetConfig {
	return YuNetConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection.
// Unlike the cascade it reports a real score per face.
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   YuNetConfig
	size     image.Point
	mu       sync.Mutex // Protects inference
}

// NewYuNet loads the YuNet model.
func NewYuNet(cfg YuNetConfig) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	size := image.Pt(cfg.InputWidth, cfg.InputHeight)
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		size,
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
		size:     size,
	}, nil
}

// Detect implements detection.Detector. Boxes are in frame pixels.
func (d *YuNetDetector) Detect(f frame.Frame) ([]detection.Record, error) {
	img, err := ToMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if sz := image.Pt(img.Cols(), img.Rows()); sz != d.size {
		d.detector.SetInputSize(sz)
		d.size = sz
	}

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	// Row layout (15 columns): x, y, w, h, five landmark pairs, score.
	recs := make([]detection.Record, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		box := detection.BoxFromRect(image.Rect(x, y, x+w, y+h).Intersect(f.Bounds()))
		recs = append(recs, detection.Record{Label: "face", Confidence: score, Box: box})
	}
	return recs, nil
}

// Kind implements detection.Detector.
func (d *YuNetDetector) Kind() detection.Kind {
	return detection.KindFace
}

// Close releases the detector resources.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
