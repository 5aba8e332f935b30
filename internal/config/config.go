// Package config loads the proctor configuration from a .env file, the
// environment and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/remote"
	"github.com/teslashibe/go-proctor/pkg/remote/postgres"
	"github.com/teslashibe/go-proctor/pkg/remote/postgrest"
	"github.com/teslashibe/go-proctor/pkg/remote/sheets"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/web"
)

// Store backends.
const (
	StoreSupabase = "supabase"
	StorePostgres = "postgres"
	StoreSheets   = "sheets"
	StoreNone     = "none"
)

// Face detector backends.
const (
	FaceHaar  = "haar"
	FaceYuNet = "yunet"
)

// Models holds detector model paths.
type Models struct {
	FaceDetector string `json:"face_detector"` // haar or yunet
	FaceCascade  string `json:"face_cascade"`
	EyeCascade   string `json:"eye_cascade"`
	YuNet        string `json:"yunet"`
	YOLO         string `json:"yolo"`
}

// Config is the complete proctor configuration.
type Config struct {
	Env      string `json:"env"`
	LogLevel string `json:"log_level"`

	Session session.Config         `json:"session"`
	Camera  camera.Config          `json:"camera"`
	Objects detection.ObjectConfig `json:"objects"`
	Faces   detection.FaceConfig   `json:"faces"`
	Gaze    gaze.Config            `json:"gaze"`
	Models  Models                 `json:"models"`

	// Store selects the remote backend: supabase, postgres, sheets or none.
	Store     string           `json:"store"`
	Sync      remote.Config    `json:"sync"`
	PostgREST postgrest.Config `json:"postgrest"`
	Postgres  postgres.Config  `json:"postgres"`
	Sheets    sheets.Config    `json:"sheets"`

	Dashboard        web.Config `json:"dashboard"`
	DashboardEnabled bool       `json:"dashboard_enabled"`

	// problems collects unparsable values; they fall back to defaults.
	problems []string
}

// Default returns the configuration with every default applied.
func Default() Config {
	modelsDir := "models"
	return Config{
		Env:      "development",
		LogLevel: "info",
		Session:  session.DefaultConfig(),
		Camera:   camera.DefaultConfig(),
		Objects:  detection.DefaultObjectConfig(),
		Faces:    detection.DefaultFaceConfig(),
		Gaze:     gaze.DefaultConfig(),
		Models: Models{
			FaceDetector: FaceHaar,
			FaceCascade:  filepath.Join(modelsDir, "haarcascade_frontalface_default.xml"),
			EyeCascade:   filepath.Join(modelsDir, "haarcascade_eye.xml"),
			YuNet:        filepath.Join(modelsDir, "face_detection_yunet.onnx"),
			YOLO:         filepath.Join(modelsDir, "yolov8n.onnx"),
		},
		Store:     StoreNone,
		Sync:      remote.DefaultConfig(),
		PostgREST: postgrest.DefaultConfig(),
		Postgres:  postgres.DefaultConfig(),
		Sheets:    sheets.DefaultConfig(),
		Dashboard: web.DefaultConfig(),
	}
}

// Load reads .env (a missing file is fine) and then the environment.
func Load() Config {
	_ = godotenv.Load()
	return LoadFrom(os.Getenv)
}

// LoadFrom builds the configuration from an environment lookup.
func LoadFrom(getenv func(string) string) Config {
	c := Default()
	e := env{getenv: getenv, c: &c}

	c.Env = e.str("PROCTOR_ENV", c.Env)
	c.LogLevel = e.str("PROCTOR_LOG_LEVEL", c.LogLevel)

	// Session
	s := &c.Session
	s.StudentID = e.str("PROCTOR_STUDENT_ID", s.StudentID)
	s.ExamID = e.str("PROCTOR_EXAM_ID", s.ExamID)
	s.NoFaceTimeout = e.duration("PROCTOR_NO_FACE_TIMEOUT", s.NoFaceTimeout)
	s.NoFaceWarning = e.duration("PROCTOR_NO_FACE_WARNING", s.NoFaceWarning)
	s.HeartbeatInterval = e.duration("PROCTOR_HEARTBEAT_INTERVAL", s.HeartbeatInterval)
	s.StatusPollInterval = e.duration("PROCTOR_STATUS_POLL_INTERVAL", s.StatusPollInterval)
	s.AutoStart = e.boolean("PROCTOR_AUTO_START", s.AutoStart)
	s.RetryForever = e.boolean("PROCTOR_RETRY_FOREVER", s.RetryForever)
	s.CountObjectPersons = e.boolean("PROCTOR_COUNT_OBJECT_PERSONS", s.CountObjectPersons)
	s.HistorySize = e.integer("PROCTOR_HISTORY_SIZE", s.HistorySize)
	s.MovementDelta = e.integer("PROCTOR_MOVEMENT_DELTA", s.MovementDelta)
	s.MovementFraction = e.float("PROCTOR_MOVEMENT_FRACTION", s.MovementFraction)

	// Violation weights
	v := &s.Violation
	v.NoPersonWeight = e.integer("PROCTOR_WEIGHT_NO_PERSON", v.NoPersonWeight)
	v.MultiplePersonsWeight = e.integer("PROCTOR_WEIGHT_MULTIPLE_PERSONS", v.MultiplePersonsWeight)
	v.GazeShiftWeight = e.integer("PROCTOR_WEIGHT_GAZE_SHIFT", v.GazeShiftWeight)
	v.EyesNotVisibleWeight = e.integer("PROCTOR_WEIGHT_EYES_NOT_VISIBLE", v.EyesNotVisibleWeight)
	v.DefaultObjectWeight = e.integer("PROCTOR_WEIGHT_OBJECT_DEFAULT", v.DefaultObjectWeight)
	v.LabelWeights = e.weights("PROCTOR_LABEL_WEIGHTS", v.LabelWeights)
	v.WarningAbove = e.integer("PROCTOR_WARNING_ABOVE", v.WarningAbove)
	v.CriticalAbove = e.integer("PROCTOR_CRITICAL_ABOVE", v.CriticalAbove)

	// Camera
	cam := &c.Camera
	cam.DeviceIndices = e.ints("PROCTOR_CAMERA_INDICES", cam.DeviceIndices)
	cam.Backends = e.backends("PROCTOR_CAMERA_BACKENDS", cam.Backends)
	cam.Width = e.integer("PROCTOR_FRAME_WIDTH", cam.Width)
	cam.Height = e.integer("PROCTOR_FRAME_HEIGHT", cam.Height)
	cam.Framerate = e.integer("PROCTOR_FRAMERATE", cam.Framerate)
	cam.WarmupAttempts = e.integer("PROCTOR_WARMUP_ATTEMPTS", cam.WarmupAttempts)
	cam.ReconnectWarmupAttempts = e.integer("PROCTOR_RECONNECT_WARMUP_ATTEMPTS", cam.ReconnectWarmupAttempts)
	cam.MinBrightness = e.float("PROCTOR_MIN_BRIGHTNESS", cam.MinBrightness)
	cam.ReconnectWindow = e.duration("PROCTOR_RECONNECT_WINDOW", cam.ReconnectWindow)
	cam.RetryInterval = e.duration("PROCTOR_RETRY_INTERVAL", cam.RetryInterval)

	// Detection
	c.Objects.ConfidenceFloor = e.float("PROCTOR_OBJECT_CONFIDENCE", c.Objects.ConfidenceFloor)
	c.Objects.PersonFloor = e.float("PROCTOR_PERSON_CONFIDENCE", c.Objects.PersonFloor)
	c.Objects.Cadence = e.integer("PROCTOR_OBJECT_CADENCE", c.Objects.Cadence)
	c.Faces.PersonFloor = c.Objects.PersonFloor
	c.Gaze.LeftBound = e.float("PROCTOR_GAZE_LEFT", c.Gaze.LeftBound)
	c.Gaze.RightBound = e.float("PROCTOR_GAZE_RIGHT", c.Gaze.RightBound)
	c.Gaze.Mirror = e.boolean("PROCTOR_GAZE_MIRROR", c.Gaze.Mirror)

	// Models
	m := &c.Models
	m.FaceDetector = strings.ToLower(e.str("PROCTOR_FACE_DETECTOR", m.FaceDetector))
	if dir := e.str("PROCTOR_MODELS_DIR", ""); dir != "" {
		m.FaceCascade = filepath.Join(dir, filepath.Base(m.FaceCascade))
		m.EyeCascade = filepath.Join(dir, filepath.Base(m.EyeCascade))
		m.YuNet = filepath.Join(dir, filepath.Base(m.YuNet))
		m.YOLO = filepath.Join(dir, filepath.Base(m.YOLO))
	}
	m.FaceCascade = e.str("PROCTOR_FACE_CASCADE", m.FaceCascade)
	m.EyeCascade = e.str("PROCTOR_EYE_CASCADE", m.EyeCascade)
	m.YuNet = e.str("PROCTOR_YUNET_MODEL", m.YuNet)
	m.YOLO = e.str("PROCTOR_YOLO_MODEL", m.YOLO)

	// Remote store
	c.Store = strings.ToLower(e.str("PROCTOR_STORE", c.Store))
	c.Sync.QueueSize = e.integer("PROCTOR_SYNC_QUEUE", c.Sync.QueueSize)
	c.Sync.CallTimeout = e.duration("PROCTOR_SYNC_TIMEOUT", c.Sync.CallTimeout)
	c.PostgREST.URL = e.str("SUPABASE_URL", c.PostgREST.URL)
	c.PostgREST.APIKey = e.str("SUPABASE_KEY", c.PostgREST.APIKey)
	c.PostgREST.StatusTable = e.str("PROCTOR_STATUS_TABLE", c.PostgREST.StatusTable)
	c.PostgREST.ViolationTable = e.str("PROCTOR_VIOLATION_TABLE", c.PostgREST.ViolationTable)
	c.PostgREST.ExtendedViolations = e.boolean("PROCTOR_EXTENDED_VIOLATIONS", c.PostgREST.ExtendedViolations)
	c.Postgres.DSN = e.str("PROCTOR_DATABASE_URL", c.Postgres.DSN)
	c.Postgres.Migrate = e.boolean("PROCTOR_DATABASE_MIGRATE", c.Postgres.Migrate)
	c.Sheets.CredentialsFile = e.str("PROCTOR_GOOGLE_CREDENTIALS", c.Sheets.CredentialsFile)
	c.Sheets.SpreadsheetID = e.str("PROCTOR_SPREADSHEET_ID", c.Sheets.SpreadsheetID)

	// Dashboard
	c.DashboardEnabled = e.boolean("PROCTOR_DASHBOARD", c.DashboardEnabled)
	c.Dashboard.Addr = e.str("PROCTOR_DASHBOARD_ADDR", c.Dashboard.Addr)
	c.Dashboard.StaticDir = e.str("PROCTOR_STATIC_DIR", c.Dashboard.StaticDir)
	c.Dashboard.AccessLog = e.boolean("PROCTOR_ACCESS_LOG", c.Dashboard.AccessLog)

	return c
}

// IsProduction reports whether PROCTOR_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks the whole configuration and returns every problem.
func (c *Config) Validate() []string {
	errs := append([]string(nil), c.problems...)

	errs = append(errs, c.Session.Validate()...)
	errs = append(errs, c.Camera.Validate()...)
	errs = append(errs, c.Gaze.Validate()...)

	if c.Objects.Cadence < 1 {
		errs = append(errs, "object cadence must be at least 1")
	}
	if c.Objects.ConfidenceFloor < 0 || c.Objects.ConfidenceFloor > 1 {
		errs = append(errs, "object confidence must be between 0 and 1")
	}
	if c.Objects.PersonFloor < 0 || c.Objects.PersonFloor > 1 {
		errs = append(errs, "person confidence must be between 0 and 1")
	}

	switch c.Models.FaceDetector {
	case FaceHaar, FaceYuNet:
	default:
		errs = append(errs, fmt.Sprintf("unknown face detector %q (haar, yunet)", c.Models.FaceDetector))
	}

	switch c.Store {
	case StoreSupabase:
		if c.PostgREST.URL == "" || c.PostgREST.APIKey == "" {
			errs = append(errs, "supabase store needs SUPABASE_URL and SUPABASE_KEY")
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, "postgres store needs PROCTOR_DATABASE_URL")
		}
	case StoreSheets:
		if c.Sheets.CredentialsFile == "" || c.Sheets.SpreadsheetID == "" {
			errs = append(errs, "sheets store needs PROCTOR_GOOGLE_CREDENTIALS and PROCTOR_SPREADSHEET_ID")
		}
	case StoreNone:
	default:
		errs = append(errs, fmt.Sprintf("unknown store %q (supabase, postgres, sheets, none)", c.Store))
	}

	if c.Sync.QueueSize < 1 {
		errs = append(errs, "sync queue size must be at least 1")
	}
	return errs
}

// env reads typed values, recording unparsable ones.
type env struct {
	getenv func(string) string
	c      *Config
}

func (e env) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e env) bad(key, value, want string) {
	e.c.problems = append(e.c.problems, fmt.Sprintf("%s=%q is not a valid %s", key, value, want))
}

func (e env) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e env) integer(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.bad(key, v, "integer")
		return def
	}
	return n
}

func (e env) float(key string, def float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.bad(key, v, "number")
		return def
	}
	return f
}

func (e env) boolean(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.bad(key, v, "boolean")
		return def
	}
	return b
}

// duration accepts Go durations ("10s") or plain seconds ("10").
func (e env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	e.bad(key, v, "duration")
	return def
}

// ints parses "0,1,2".
func (e env) ints(key string, def []int) []int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			e.bad(key, v, "integer list")
			return def
		}
		out = append(out, n)
	}
	return out
}

// backends parses "V4L2,ANY".
func (e env) backends(key string, def []camera.Backend) []camera.Backend {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	var out []camera.Backend
	for _, name := range strings.Split(v, ",") {
		b, ok := camera.BackendByName(name)
		if !ok {
			e.bad(key, v, "backend list")
			return def
		}
		out = append(out, b)
	}
	return out
}

// weights parses "cell phone=80,laptop=70" and overlays the defaults.
func (e env) weights(key string, def map[string]int) map[string]int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	out := make(map[string]int, len(def))
	for k, w := range def {
		out[k] = w
	}
	for _, pair := range strings.Split(v, ",") {
		label, weight, found := strings.Cut(pair, "=")
		n, err := strconv.Atoi(strings.TrimSpace(weight))
		if !found || err != nil || strings.TrimSpace(label) == "" {
			e.bad(key, v, "label weight list")
			return def
		}
		out[strings.ToLower(strings.TrimSpace(label))] = n
	}
	return out
}
