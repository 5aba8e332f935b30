package opencv

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

func solidFrame(w, h int, b, g, r byte) frame.Frame {
	px := make([]byte, w*h*frame.Channels)
	for i := 0; i < len(px); i += 3 {
		px[i], px[i+1], px[i+2] = b, g, r
	}
	return frame.New(1, time.Now(), w, h, px)
}

func TestMatRoundTrip(t *testing.T) {
	f := solidFrame(32, 24, 10, 20, 30)

	m, err := ToMat(f)
	if err != nil {
		t.Fatalf("ToMat failed: %v", err)
	}
	defer m.Close()

	if m.Cols() != 32 || m.Rows() != 24 || m.Channels() != 3 {
		t.Fatalf("mat is %dx%dx%d", m.Cols(), m.Rows(), m.Channels())
	}

	back, err := FromMat(m, 7, f.CapturedAt)
	if err != nil {
		t.Fatalf("FromMat failed: %v", err)
	}
	if back.Seq != 7 || back.Width != 32 || back.Height != 24 {
		t.Errorf("unexpected frame header %+v", back)
	}
	if !bytes.Equal(back.Pixels, f.Pixels) {
		t.Error("pixels changed in round trip")
	}
}

func TestToMat_Empty(t *testing.T) {
	m, err := ToMat(frame.Frame{})
	defer m.Close()
	if err != ErrEmptyImage {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
}

func TestDecodeImage(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		wantW int
		wantH int
	}{
		{"small image is upscaled", 320, 240, 640, 480},
		{"wide image is kept", 800, 600, 800, 600},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := DecodeImage(createSolidJPEG(tc.w, tc.h, color.RGBA{0, 0, 255, 255}))
			if err != nil {
				t.Fatalf("DecodeImage failed: %v", err)
			}
			if f.Width != tc.wantW || f.Height != tc.wantH {
				t.Errorf("size = %dx%d, want %dx%d", f.Width, f.Height, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestDecodeImage_Invalid(t *testing.T) {
	if _, err := DecodeImage(nil); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := DecodeImage([]byte("not a jpeg")); err == nil {
		t.Error("expected error for invalid JPEG")
	}
}

func TestDecodeBase64(t *testing.T) {
	raw := createSolidJPEG(640, 480, color.RGBA{128, 128, 128, 255})
	enc := base64.StdEncoding.EncodeToString(raw)

	for _, in := range []string{enc, "data:image/jpeg;base64," + enc} {
		f, err := DecodeBase64(in)
		if err != nil {
			t.Fatalf("DecodeBase64 failed: %v", err)
		}
		if f.Width != 640 {
			t.Errorf("width = %d", f.Width)
		}
	}

	if _, err := DecodeBase64("data:image/jpeg;base64,***"); err == nil {
		t.Error("expected error for bad base64")
	}
}

func TestRenderer_Encode(t *testing.T) {
	f := solidFrame(320, 240, 40, 40, 40)
	orig := append([]byte(nil), f.Pixels...)

	snap := session.Snapshot{
		Face: gaze.FaceState{
			Present: true,
			Boxes:   []detection.Box{{X1: 100, Y1: 60, X2: 180, Y2: 140}},
			Gaze:    gaze.Left,
		},
		Objects: []detection.Record{{Label: "cell phone", Confidence: 0.8, Box: detection.Box{X1: 10, Y1: 150, X2: 60, Y2: 220}}},
		Assessment: violation.Assessment{
			Events: []violation.Event{{Kind: violation.ProhibitedObject, Detail: "Prohibited object: cell phone (0.80)", Weight: 80}},
			Risk:   80,
			Band:   violation.BandCritical,
		},
	}

	data, err := NewRenderer().Encode(f, snap)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("output size %v", b)
	}
	if !bytes.Equal(f.Pixels, orig) {
		t.Error("captured frame was modified")
	}
}

func TestRenderer_EncodeMovement(t *testing.T) {
	f := solidFrame(320, 240, 40, 40, 40)
	snap := session.Snapshot{
		Face:          gaze.FaceState{Present: true, Gaze: gaze.Forward},
		MovementAlert: true,
		Assessment:    violation.Assessment{Band: violation.BandWarning},
	}

	data, err := NewRenderer().Encode(f, snap)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
}

func TestEncodeFrame_Empty(t *testing.T) {
	if _, err := EncodeFrame(frame.Frame{}, 80); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestNew_MissingModels(t *testing.T) {
	if _, err := NewYuNet(YuNetConfig{ModelPath: "/nonexistent/model.onnx"}); err == nil {
		t.Error("expected error for missing YuNet model")
	}
	if _, err := NewYOLO(YOLOConfig{ModelPath: "/nonexistent/model.onnx"}); err == nil {
		t.Error("expected error for missing YOLO model")
	}
	if _, err := NewCascade(detection.KindFace, CascadeConfig{Path: "/nonexistent/cascade.xml"}); err == nil {
		t.Error("expected error for missing cascade")
	}
}

func TestClassName(t *testing.T) {
	tests := []struct {
		id   int
		want string
	}{
		{0, "person"},
		{63, "laptop"},
		{67, "cell phone"},
		{73, "book"},
		{80, "class_80"},
		{-1, "class_-1"},
	}
	for _, tc := range tests {
		if got := ClassName(tc.id); got != tc.want {
			t.Errorf("ClassName(%d) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestYuNet_SolidImage(t *testing.T) {
	modelPath := findModel("face_detection_yunet.onnx")
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultYuNetConfig()
	cfg.ModelPath = modelPath
	d, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer d.Close()

	recs, err := d.Detect(solidFrame(320, 240, 255, 0, 0))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(recs) > 0 {
		t.Errorf("expected no faces in solid image, got %d", len(recs))
	}

	// Frame size changes must be picked up.
	if _, err := d.Detect(solidFrame(640, 480, 0, 0, 0)); err != nil {
		t.Errorf("Detect after resize failed: %v", err)
	}
}

func TestYuNet_Concurrency(t *testing.T) {
	modelPath := findModel("face_detection_yunet.onnx")
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultYuNetConfig()
	cfg.ModelPath = modelPath
	d, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer d.Close()

	f := solidFrame(320, 240, 100, 100, 100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Detect(f); err != nil {
				t.Errorf("Concurrent detection failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestYOLO_SolidImage(t *testing.T) {
	modelPath := findModel("yolov8n.onnx")
	if modelPath == "" {
		t.Skip("YOLO model not found, skipping test")
	}

	cfg := DefaultYOLOConfig()
	cfg.ModelPath = modelPath
	d, err := NewYOLO(cfg)
	if err != nil {
		t.Fatalf("NewYOLO failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Detect(solidFrame(640, 480, 200, 200, 200)); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if d.Kind() != detection.KindObject {
		t.Errorf("kind = %v", d.Kind())
	}
}

func TestCascade_SolidImage(t *testing.T) {
	path := findModel("haarcascade_frontalface_default.xml")
	if path == "" {
		t.Skip("face cascade not found, skipping test")
	}

	cfg := DefaultFaceCascade()
	cfg.Path = path
	d, err := NewCascade(detection.KindFace, cfg)
	if err != nil {
		t.Fatalf("NewCascade failed: %v", err)
	}
	defer d.Close()

	recs, err := d.Detect(solidFrame(320, 240, 0, 0, 255))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no faces, got %d", len(recs))
	}
}

// Helper functions

func findModel(name string) string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
			p := filepath.Join(dir, "models", name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

func createSolidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
