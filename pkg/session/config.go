package session

import (
	"time"

	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Config holds session timing and policy.
type Config struct {
	// === Identity ===
	StudentID string `json:"student_id"`
	ExamID    string `json:"exam_id"`
	SessionID string `json:"session_id"` // Generated when empty

	// === Timers ===
	// NoFaceTimeout stops the exam once no face has been seen for this long.
	NoFaceTimeout time.Duration `json:"no_face_timeout"`

	// NoFaceWarning starts the on-screen countdown before the timeout.
	NoFaceWarning time.Duration `json:"no_face_warning"`

	// HeartbeatInterval is the liveness cadence, independent of violations.
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`

	// StatusPollInterval is how often the remote exam status is read.
	StatusPollInterval time.Duration `json:"status_poll_interval"`

	// PlaceholderDelay paces the loop while the camera is reconnecting.
	PlaceholderDelay time.Duration `json:"placeholder_delay"`

	// === Policy ===
	// AutoStart waits for the remote exam to become active before monitoring.
	AutoStart bool `json:"auto_start"`

	// RetryForever starts a new reconnect window whenever one is
	// exhausted. When false, an exhausted window ends the session with ERROR.
	RetryForever bool `json:"retry_forever"`

	// CountObjectPersons counts people seen by the object detector too.
	CountObjectPersons bool `json:"count_object_persons"`

	// MovementDelta is the luma change a pixel needs to count as moved.
	MovementDelta int `json:"movement_delta"`

	// MovementFraction is the share of moved pixels between consecutive
	// live frames that raises the movement alert. Zero disables it.
	MovementFraction float64 `json:"movement_fraction"`

	// HistorySize bounds the in-memory violation history.
	HistorySize int `json:"history_size"`

	// Violation weights and bands.
	Violation violation.Config `json:"violation"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		NoFaceTimeout:      10 * time.Second,
		NoFaceWarning:      5 * time.Second,
		HeartbeatInterval:  5 * time.Second,
		StatusPollInterval: 3 * time.Second,
		PlaceholderDelay:   100 * time.Millisecond,
		RetryForever:       true,
		MovementDelta:      25,
		MovementFraction:   0.005,
		HistorySize:        100,
		Violation:          violation.DefaultConfig(),
	}
}

// Validate checks if the config values are within valid ranges.
func (c *Config) Validate() []string {
	var errors []string

	if c.StudentID == "" {
		errors = append(errors, "student_id is required")
	}
	if c.ExamID == "" {
		errors = append(errors, "exam_id is required")
	}
	if c.NoFaceTimeout <= 0 {
		errors = append(errors, "no_face_timeout must be positive")
	}
	if c.NoFaceWarning < 0 || c.NoFaceWarning >= c.NoFaceTimeout {
		errors = append(errors, "no_face_warning must be between 0 and no_face_timeout")
	}
	if c.HeartbeatInterval <= 0 {
		errors = append(errors, "heartbeat_interval must be positive")
	}
	if c.StatusPollInterval <= 0 {
		errors = append(errors, "status_poll_interval must be positive")
	}
	if c.MovementDelta < 0 || c.MovementDelta > 255 {
		errors = append(errors, "movement_delta must be between 0 and 255")
	}
	if c.MovementFraction < 0 || c.MovementFraction > 1 {
		errors = append(errors, "movement_fraction must be between 0 and 1")
	}
	if c.HistorySize < 0 {
		errors = append(errors, "history_size must not be negative")
	}
	errors = append(errors, c.Violation.Validate()...)

	return errors
}
