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

// YOLOConfig holds YOLO detector configuration.
type YOLOConfig struct {
	ModelPath string

	// ConfidenceThresh is the raw score floor before NMS. Per-label floors
	// are applied later by the object adapter, so keep this at or below
	// the lowest of them.
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultYOLOConfig returns production defaults for YOLOv8n.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// YOLODetector uses YOLOv8 for general object detection.
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
}

// NewYOLO loads the ONNX model.
func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect implements detection.Detector. Labels are COCO class names.
func (d *YOLODetector) Detect(f frame.Frame) ([]detection.Record, error) {
	img, err := ToMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	return d.parse(output, f.Bounds())
}

// parse decodes the [1, 84, 8400] YOLOv8 tensor: 4 box values then 80
// class scores per anchor, stored column-major.
func (d *YOLODetector) parse(output gocv.Mat, bounds image.Rectangle) ([]detection.Record, error) {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected YOLO output shape %v", sizes)
	}
	cols, rows := sizes[1], sizes[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read YOLO output: %w", err)
	}

	sx := float32(bounds.Dx()) / float32(d.config.InputWidth)
	sy := float32(bounds.Dy()) / float32(d.config.InputHeight)

	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < cols; c++ {
			if score := data[c*rows+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx, cy := data[i], data[rows+i]
		w, h := data[2*rows+i], data[3*rows+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)
	recs := make([]detection.Record, 0, len(indices))
	for _, idx := range indices {
		recs = append(recs, detection.Record{
			Label:      ClassName(classIDs[idx]),
			Confidence: float64(confidences[idx]),
			Box:        detection.BoxFromRect(boxes[idx].Intersect(bounds)),
		})
	}
	return recs, nil
}

// Kind implements detection.Detector.
func (d *YOLODetector) Kind() detection.Kind {
	return detection.KindObject
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}

// ClassName returns the COCO name for id, or "class_<id>".
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return fmt.Sprintf("class_%d", id)
	}
	return COCOClasses[id]
}

// COCOClasses contains the 80 COCO class names.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
