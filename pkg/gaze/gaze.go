// Package gaze derives a coarse gaze and eye-visibility state from the
// candidate face.
//
// This is an approximation: gaze comes from where the face sits in the
// frame and how many eyes a cascade finds inside it, not from landmarks
// or head pose.
package gaze

import (
	"fmt"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/frame"
)

// Gaze is the discrete gaze direction.
type Gaze int

const (
	NotDetected Gaze = iota
	Forward
	Left
	Right
	Away
)

func (g Gaze) String() string {
	switch g {
	case NotDetected:
		return "NOT_DETECTED"
	case Forward:
		return "FORWARD"
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	case Away:
		return "AWAY"
	default:
		return fmt.Sprintf("GAZE(%d)", int(g))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (g Gaze) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// EyeStatus reports how many eyes were found in the candidate face.
type EyeStatus int

const (
	EyesOK EyeStatus = iota
	EyesPartial
	EyesNotVisible
)

func (e EyeStatus) String() string {
	switch e {
	case EyesOK:
		return "OK"
	case EyesPartial:
		return "PARTIAL"
	case EyesNotVisible:
		return "NOT_VISIBLE"
	default:
		return fmt.Sprintf("EYES(%d)", int(e))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e EyeStatus) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// FaceState is the per-frame face summary.
type FaceState struct {
	Present   bool            `json:"present"`
	Boxes     []detection.Box `json:"boxes"` // Largest first
	Gaze      Gaze            `json:"gaze"`
	EyeStatus EyeStatus       `json:"eye_status"`
	Eyes      []detection.Box `json:"eyes,omitempty"` // Eyes of the candidate, frame coordinates
}

// Absent is the state of a frame with no face.
func Absent() FaceState {
	return FaceState{Gaze: NotDetected, EyeStatus: EyesNotVisible}
}

// Config holds gaze thresholds as fractions of frame width.
type Config struct {
	// LeftBound: a face centered left of this is looking aside.
	LeftBound float64 `json:"left_bound"`

	// RightBound: a face centered right of this is looking aside.
	RightBound float64 `json:"right_bound"`

	// Mirror swaps LEFT and RIGHT for cameras that deliver a mirrored image.
	Mirror bool `json:"mirror"`
}

// DefaultConfig splits the frame into thirds.
func DefaultConfig() Config {
	return Config{
		LeftBound:  1.0 / 3.0,
		RightBound: 2.0 / 3.0,
	}
}

// Validate checks if the config values are within valid ranges.
func (c *Config) Validate() []string {
	var errors []string
	if c.LeftBound <= 0 || c.LeftBound >= 1 {
		errors = append(errors, "gaze left_bound must be between 0 and 1")
	}
	if c.RightBound <= 0 || c.RightBound >= 1 {
		errors = append(errors, "gaze right_bound must be between 0 and 1")
	}
	if c.LeftBound >= c.RightBound {
		errors = append(errors, "gaze left_bound must be less than right_bound")
	}
	return errors
}

// Classify derives gaze and eye status for a candidate face. countEyes is
// only called when the face is in the middle band.
func Classify(cfg Config, frameWidth int, candidate detection.Box, countEyes func() int) (Gaze, EyeStatus) {
	if frameWidth <= 0 {
		return NotDetected, EyesNotVisible
	}

	cx, _ := candidate.Center()
	rel := cx / float64(frameWidth)

	switch {
	case rel < cfg.LeftBound:
		if cfg.Mirror {
			return Right, EyesOK
		}
		return Left, EyesOK
	case rel > cfg.RightBound:
		if cfg.Mirror {
			return Left, EyesOK
		}
		return Right, EyesOK
	}

	switch n := countEyes(); {
	case n == 0:
		return Away, EyesNotVisible
	case n == 1:
		return Forward, EyesPartial
	default:
		return Forward, EyesOK
	}
}

// EyeLocator finds eyes in face i of an observation and records them on it.
type EyeLocator interface {
	DetectEyes(f frame.Frame, obs *detection.FaceObservation, i int) ([]detection.Box, error)
}

// Estimator turns a face observation into a FaceState.
type Estimator struct {
	config Config
	eyes   EyeLocator
}

// NewEstimator creates an estimator. eyes may be nil, in which case every
// centered face reads as AWAY.
func NewEstimator(cfg Config, eyes EyeLocator) *Estimator {
	return &Estimator{config: cfg, eyes: eyes}
}

// Estimate classifies the candidate face of obs. A failed eye lookup counts
// as zero eyes and is returned for logging.
func (e *Estimator) Estimate(f frame.Frame, obs *detection.FaceObservation) (FaceState, error) {
	cand, ok := obs.Candidate()
	if !ok {
		return Absent(), nil
	}

	state := FaceState{Present: true, Boxes: obs.Boxes()}
	var eyeErr error
	state.Gaze, state.EyeStatus = Classify(e.config, f.Width, cand.Box, func() int {
		if e.eyes == nil {
			return 0
		}
		found, err := e.eyes.DetectEyes(f, obs, 0)
		if err != nil {
			eyeErr = err
			return 0
		}
		state.Eyes = found
		return len(found)
	})
	return state, eyeErr
}
