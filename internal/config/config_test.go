package config

import (
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-proctor/pkg/camera"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	c := LoadFrom(envMap(nil))

	if c.Session.NoFaceTimeout != 10*time.Second || c.Session.NoFaceWarning != 5*time.Second {
		t.Errorf("no-face timers = %v/%v", c.Session.NoFaceTimeout, c.Session.NoFaceWarning)
	}
	if c.Objects.Cadence != 3 || c.Objects.ConfidenceFloor != 0.30 || c.Objects.PersonFloor != 0.65 {
		t.Errorf("object defaults = %+v", c.Objects)
	}
	if c.Camera.ReconnectWindow != 30*time.Second || c.Camera.RetryInterval != 2*time.Second {
		t.Errorf("camera reconnect = %v/%v", c.Camera.ReconnectWindow, c.Camera.RetryInterval)
	}
	if c.Store != StoreNone || c.Models.FaceDetector != FaceHaar {
		t.Errorf("store=%s face=%s", c.Store, c.Models.FaceDetector)
	}

	// Identity is the only thing missing.
	errs := c.Validate()
	if len(errs) != 2 {
		t.Errorf("expected 2 problems (student_id, exam_id), got %v", errs)
	}
}

func TestLoadFrom(t *testing.T) {
	c := LoadFrom(envMap(map[string]string{
		"PROCTOR_STUDENT_ID":        "stu-9",
		"PROCTOR_EXAM_ID":           "exam-3",
		"PROCTOR_NO_FACE_TIMEOUT":   "15",
		"PROCTOR_NO_FACE_WARNING":   "4s",
		"PROCTOR_AUTO_START":        "true",
		"PROCTOR_CAMERA_INDICES":    "2, 0",
		"PROCTOR_CAMERA_BACKENDS":   "v4l2,ANY",
		"PROCTOR_OBJECT_CADENCE":    "5",
		"PROCTOR_PERSON_CONFIDENCE": "0.7",
		"PROCTOR_LABEL_WEIGHTS":     "Cell Phone=95, smartwatch=60",
		"PROCTOR_MODELS_DIR":        "/opt/models",
		"PROCTOR_YOLO_MODEL":        "/srv/yolo.onnx",
		"PROCTOR_STORE":             "Supabase",
		"SUPABASE_URL":              "https://example.supabase.co",
		"SUPABASE_KEY":              "key",
		"PROCTOR_MOVEMENT_DELTA":    "30",
		"PROCTOR_MOVEMENT_FRACTION": "0",
	}))

	if errs := c.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected problems: %v", errs)
	}
	if c.Session.StudentID != "stu-9" || c.Session.ExamID != "exam-3" || !c.Session.AutoStart {
		t.Errorf("session = %+v", c.Session)
	}
	if c.Session.NoFaceTimeout != 15*time.Second || c.Session.NoFaceWarning != 4*time.Second {
		t.Errorf("timers = %v/%v", c.Session.NoFaceTimeout, c.Session.NoFaceWarning)
	}
	if len(c.Camera.DeviceIndices) != 2 || c.Camera.DeviceIndices[0] != 2 {
		t.Errorf("indices = %v", c.Camera.DeviceIndices)
	}
	if len(c.Camera.Backends) != 2 || c.Camera.Backends[0] != camera.BackendV4L2 {
		t.Errorf("backends = %v", c.Camera.Backends)
	}
	if c.Objects.Cadence != 5 || c.Faces.PersonFloor != 0.7 {
		t.Errorf("detection = %+v %+v", c.Objects, c.Faces)
	}
	w := c.Session.Violation.LabelWeights
	if w["cell phone"] != 95 || w["smartwatch"] != 60 || w["laptop"] != 70 {
		t.Errorf("weights = %v", w)
	}
	if c.Models.FaceCascade != "/opt/models/haarcascade_frontalface_default.xml" || c.Models.YOLO != "/srv/yolo.onnx" {
		t.Errorf("models = %+v", c.Models)
	}
	if c.Store != StoreSupabase {
		t.Errorf("store = %s", c.Store)
	}
	if c.Session.MovementDelta != 30 || c.Session.MovementFraction != 0 {
		t.Errorf("movement = %d/%v", c.Session.MovementDelta, c.Session.MovementFraction)
	}
}

func TestValidate_MovementRange(t *testing.T) {
	c := LoadFrom(envMap(map[string]string{
		"PROCTOR_STUDENT_ID":        "s",
		"PROCTOR_EXAM_ID":           "e",
		"PROCTOR_MOVEMENT_DELTA":    "300",
		"PROCTOR_MOVEMENT_FRACTION": "1.5",
	}))
	if errs := c.Validate(); len(errs) != 2 {
		t.Errorf("expected 2 problems, got %v", errs)
	}
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	c := LoadFrom(envMap(map[string]string{
		"PROCTOR_STUDENT_ID":      "s",
		"PROCTOR_EXAM_ID":         "e",
		"PROCTOR_HISTORY_SIZE":    "lots",
		"PROCTOR_RETRY_FOREVER":   "maybe",
		"PROCTOR_CAMERA_BACKENDS": "BETAMAX",
	}))

	if c.Session.HistorySize != 100 || !c.Session.RetryForever {
		t.Error("invalid values should fall back to defaults")
	}
	errs := c.Validate()
	if len(errs) != 3 {
		t.Fatalf("expected 3 problems, got %v", errs)
	}
	if !strings.Contains(errs[0], "PROCTOR_HISTORY_SIZE") {
		t.Errorf("first problem = %s", errs[0])
	}
}

func TestValidate_Store(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"none", map[string]string{"PROCTOR_STORE": "none"}, false},
		{"supabase without key", map[string]string{"PROCTOR_STORE": "supabase", "SUPABASE_URL": "https://x"}, true},
		{"postgres", map[string]string{"PROCTOR_STORE": "postgres", "PROCTOR_DATABASE_URL": "postgres://localhost/proctor"}, false},
		{"postgres without dsn", map[string]string{"PROCTOR_STORE": "postgres"}, true},
		{"sheets", map[string]string{"PROCTOR_STORE": "sheets", "PROCTOR_GOOGLE_CREDENTIALS": "sa.json", "PROCTOR_SPREADSHEET_ID": "abc"}, false},
		{"unknown", map[string]string{"PROCTOR_STORE": "mongo"}, true},
		{"bad face detector", map[string]string{"PROCTOR_FACE_DETECTOR": "dlib"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.env["PROCTOR_STUDENT_ID"] = "s"
			tc.env["PROCTOR_EXAM_ID"] = "e"
			c := LoadFrom(envMap(tc.env))
			errs := c.Validate()
			if (len(errs) > 0) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", errs, tc.wantErr)
			}
		})
	}
}
