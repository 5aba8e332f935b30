// Package camera owns the capture device: device selection, warm-up,
// liveness checks and the reconnect state machine.
package camera

import (
	"fmt"
	"runtime"
	"time"
)

// Config holds all camera acquisition parameters.
type Config struct {
	// === Device selection ===
	// DeviceIndices are tried in order, each against every backend.
	DeviceIndices []int `json:"device_indices"`

	// Backends are the capture APIs tried for each index, in order.
	Backends []Backend `json:"backends"`

	// === Resolution ===
	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Requested FPS

	// === Warm-up ===
	// WarmupAttempts is how many reads a freshly opened device gets to
	// produce a non-black frame at session start.
	WarmupAttempts int `json:"warmup_attempts"`

	// ReconnectWarmupAttempts is the same budget while reconnecting.
	ReconnectWarmupAttempts int `json:"reconnect_warmup_attempts"`

	// MinBrightness is the mean pixel value (0-255) a frame must exceed
	// to count as live.
	MinBrightness float64 `json:"min_brightness"`

	// === Reconnect ===
	// ReconnectWindow bounds one round of reconnection scanning.
	ReconnectWindow time.Duration `json:"reconnect_window"`

	// RetryInterval is the pause between full scans inside a window.
	RetryInterval time.Duration `json:"retry_interval"`
}

// DefaultConfig returns the configuration used by the desktop monitor:
// indices 0-2 against the platform's backends, 640x480 at 30 FPS.
func DefaultConfig() Config {
	return Config{
		DeviceIndices: []int{0, 1, 2},
		Backends:      BackendsFor(runtime.GOOS),

		Width:     640,
		Height:    480,
		Framerate: 30,

		WarmupAttempts:          40,
		ReconnectWarmupAttempts: 15,
		MinBrightness:           3.0,

		ReconnectWindow: 30 * time.Second,
		RetryInterval:   2 * time.Second,
	}
}

// Candidates returns every (index, backend) pair in selection order.
func (c *Config) Candidates() []Candidate {
	out := make([]Candidate, 0, len(c.DeviceIndices)*len(c.Backends))
	for _, idx := range c.DeviceIndices {
		for _, b := range c.Backends {
			out = append(out, Candidate{Index: idx, Backend: b})
		}
	}
	return out
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if len(c.DeviceIndices) == 0 {
		errors = append(errors, "at least one camera device index is required")
	}
	for _, idx := range c.DeviceIndices {
		if idx < 0 {
			errors = append(errors, fmt.Sprintf("camera device index %d must not be negative", idx))
		}
	}
	if len(c.Backends) == 0 {
		errors = append(errors, "at least one camera backend is required")
	}

	if c.Width < 160 || c.Width > 4096 {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > 2160 {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}

	if c.WarmupAttempts < 1 {
		errors = append(errors, "warmup_attempts must be at least 1")
	}
	if c.ReconnectWarmupAttempts < 1 {
		errors = append(errors, "reconnect_warmup_attempts must be at least 1")
	}
	if c.MinBrightness < 0 || c.MinBrightness >= 255 {
		errors = append(errors, "min_brightness must be between 0 and 255")
	}

	if c.ReconnectWindow <= 0 {
		errors = append(errors, "reconnect_window must be positive")
	}
	if c.RetryInterval < 0 {
		errors = append(errors, "retry_interval must not be negative")
	}

	return errors
}
