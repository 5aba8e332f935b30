package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Sentinel errors for session conditions.
var (
	// ErrStopped is returned by Step after the session has terminated.
	ErrStopped = errors.New("session: stopped")

	// ErrNotStarted is returned by Step before Start.
	ErrNotStarted = errors.New("session: not started")
)

// Stop reasons.
const (
	ReasonOperatorStop = "operator stop"
	ReasonExamEnded    = "exam ended on server"
)

// NoFaceTimeout is the designed terminal condition of a candidate who
// left the camera.
type NoFaceTimeout struct {
	Elapsed time.Duration
}

func (e *NoFaceTimeout) Error() string {
	return fmt.Sprintf("No face detected for %d seconds.", int(e.Elapsed.Seconds()))
}

// CommandKind is the per-frame instruction to whatever drives the session.
type CommandKind int

const (
	Continue CommandKind = iota
	StopExam
	Error
)

func (k CommandKind) String() string {
	switch k {
	case Continue:
		return "CONTINUE"
	case StopExam:
		return "STOP_EXAM"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("COMMAND(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k CommandKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Command is emitted once per frame cycle.
type Command struct {
	Kind   CommandKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

// Terminal reports whether the command ends the session.
func (c Command) Terminal() bool {
	return c.Kind != Continue
}

func (c Command) String() string {
	if c.Reason == "" {
		return c.Kind.String()
	}
	return c.Kind.String() + "(" + c.Reason + ")"
}

// Phase is the session lifecycle phase.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseMonitoring
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseMonitoring:
		return "monitoring"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the session-lifetime state. Only the controller mutates it.
type State struct {
	SessionID       string    `json:"session_id"`
	StudentID       string    `json:"student_id"`
	ExamID          string    `json:"exam_id"`
	Phase           Phase     `json:"phase"`
	StartedAt       time.Time `json:"started_at"`
	LastFaceSeenAt  time.Time `json:"last_face_seen_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	FrameCounter    uint64    `json:"frame_counter"`

	// CachedObjects is the object batch in force for the current frame.
	CachedObjects []detection.Record `json:"cached_objects"`

	// CameraOutage is placeholder time since the last face, excluded
	// from the no-face clock.
	CameraOutage time.Duration `json:"camera_outage"`
}

// Snapshot is the observable result of one frame.
type Snapshot struct {
	SessionID   string             `json:"session_id,omitempty"`
	StudentID   string             `json:"student_id,omitempty"`
	ExamID      string             `json:"exam_id,omitempty"`
	Frame       uint64             `json:"frame"`
	FrameSeq    uint64             `json:"frame_seq"`
	At          time.Time          `json:"at"`
	Placeholder bool               `json:"placeholder"`
	Camera      string             `json:"camera,omitempty"`
	Face        gaze.FaceState     `json:"face"`
	Faces       []detection.Record `json:"faces"`
	PersonCount int                `json:"person_count"`
	Objects     []detection.Record `json:"objects"`
	Persons     []detection.Record `json:"persons,omitempty"`

	// MovementAlert is set when the scene changed noticeably since the
	// previous live frame. It raises the band to at least warning but is
	// not a violation.
	MovementAlert bool `json:"movement_alert"`

	violation.Assessment

	Command Command `json:"command"`
	Warning string  `json:"warning,omitempty"`
}

// Detections returns every face and object record of the frame.
func (s Snapshot) Detections() []detection.Record {
	out := make([]detection.Record, 0, len(s.Faces)+len(s.Objects))
	out = append(out, s.Faces...)
	return append(out, s.Objects...)
}

// HistoryEntry is one frame that produced violations.
type HistoryEntry struct {
	At     time.Time         `json:"at"`
	Frame  uint64            `json:"frame"`
	Events []violation.Event `json:"violations"`
	Risk   int               `json:"risk_score"`
	Band   violation.Band    `json:"status"`
}
