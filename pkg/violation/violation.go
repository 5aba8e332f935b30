// Package violation fuses per-frame face, gaze and object signals into
// violation events and a bounded risk score.
//
// Aggregate is a pure function: the same inputs always give the same
// assessment.
package violation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
)

// Kind is the violation type.
type Kind string

const (
	NoPerson         Kind = "NO_PERSON"
	MultiplePersons  Kind = "MULTIPLE_PERSONS"
	ProhibitedObject Kind = "PROHIBITED_OBJECT"
	GazeShift        Kind = "GAZE_SHIFT"
	EyesNotVisible   Kind = "EYES_NOT_VISIBLE"
)

// Event is one violation in one frame.
type Event struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
	Weight int    `json:"weight"`
}

// Band is the severity label derived from the risk score.
type Band string

const (
	BandNormal   Band = "normal"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

// Rank orders bands by severity.
func (b Band) Rank() int {
	switch b {
	case BandWarning:
		return 1
	case BandCritical:
		return 2
	default:
		return 0
	}
}

// MaxRisk is the upper clamp for risk scores.
const MaxRisk = 100

// Config holds violation weights and band cut points.
type Config struct {
	NoPersonWeight        int `json:"no_person_weight"`
	MultiplePersonsWeight int `json:"multiple_persons_weight"`
	GazeShiftWeight       int `json:"gaze_shift_weight"`
	EyesNotVisibleWeight  int `json:"eyes_not_visible_weight"`

	// LabelWeights is the per-label weight of a prohibited object.
	LabelWeights map[string]int `json:"label_weights"`

	// DefaultObjectWeight applies to prohibited labels missing from LabelWeights.
	DefaultObjectWeight int `json:"default_object_weight"`

	// Scores above WarningAbove are warning, above CriticalAbove critical.
	WarningAbove  int `json:"warning_above"`
	CriticalAbove int `json:"critical_above"`
}

// DefaultLabelWeights weighs communication devices above passive material.
func DefaultLabelWeights() map[string]int {
	return map[string]int{
		"cell phone": 80,
		"tablet":     75,
		"laptop":     70,
		"keyboard":   60,
		"book":       50,
		"remote":     40,
		"mouse":      40,
	}
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		NoPersonWeight:        100,
		MultiplePersonsWeight: 90,
		GazeShiftWeight:       20,
		EyesNotVisibleWeight:  10,
		LabelWeights:          DefaultLabelWeights(),
		DefaultObjectWeight:   50,
		WarningAbove:          30,
		CriticalAbove:         70,
	}
}

// Validate checks if the config values are within valid ranges.
func (c *Config) Validate() []string {
	var errors []string
	for name, w := range map[string]int{
		"no_person_weight":        c.NoPersonWeight,
		"multiple_persons_weight": c.MultiplePersonsWeight,
		"gaze_shift_weight":       c.GazeShiftWeight,
		"eyes_not_visible_weight": c.EyesNotVisibleWeight,
		"default_object_weight":   c.DefaultObjectWeight,
	} {
		if w < 0 || w > MaxRisk {
			errors = append(errors, fmt.Sprintf("%s must be between 0 and %d", name, MaxRisk))
		}
	}
	for label, w := range c.LabelWeights {
		if w < 0 || w > MaxRisk {
			errors = append(errors, fmt.Sprintf("weight for %q must be between 0 and %d", label, MaxRisk))
		}
	}
	if c.WarningAbove < 0 || c.CriticalAbove > MaxRisk || c.WarningAbove >= c.CriticalAbove {
		errors = append(errors, "band cut points must satisfy 0 <= warning_above < critical_above <= 100")
	}
	sort.Strings(errors)
	return errors
}

// ObjectWeight returns the weight of one prohibited object with this label.
func (c *Config) ObjectWeight(label string) int {
	if w, ok := c.LabelWeights[label]; ok {
		return w
	}
	return c.DefaultObjectWeight
}

// Band maps a clamped score to its band. Higher scores never map to a
// lower band.
func (c *Config) Band(score int) Band {
	switch {
	case score > c.CriticalAbove:
		return BandCritical
	case score > c.WarningAbove:
		return BandWarning
	default:
		return BandNormal
	}
}

// Assessment is the fused result for one frame.
type Assessment struct {
	Events []Event `json:"violations"`
	Risk   int     `json:"risk_score"`
	Band   Band    `json:"status"`
}

// Empty reports whether the frame had no violations.
func (a Assessment) Empty() bool {
	return len(a.Events) == 0
}

// Kinds returns the kind of every event, in order.
func (a Assessment) Kinds() []Kind {
	out := make([]Kind, len(a.Events))
	for i, e := range a.Events {
		out[i] = e.Kind
	}
	return out
}

// Has reports whether an event of kind k is present.
func (a Assessment) Has(k Kind) bool {
	for _, e := range a.Events {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// Summary joins the event details with " | ".
func (a Assessment) Summary() string {
	parts := make([]string, len(a.Events))
	for i, e := range a.Events {
		parts[i] = e.Detail
	}
	return strings.Join(parts, " | ")
}

// Clamp bounds a raw score to [0, MaxRisk].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxRisk {
		return MaxRisk
	}
	return score
}

// Aggregate produces the violations and risk score for one frame.
// objects are the prohibited-object detections already past the
// confidence floor.
func Aggregate(cfg Config, face gaze.FaceState, personCount int, objects []detection.Record) Assessment {
	var events []Event

	switch {
	case personCount <= 0:
		events = append(events, Event{
			Kind:   NoPerson,
			Detail: "No person detected",
			Weight: cfg.NoPersonWeight,
		})
	case personCount > 1:
		events = append(events, Event{
			Kind:   MultiplePersons,
			Detail: fmt.Sprintf("Multiple persons detected (%d)", personCount),
			Weight: cfg.MultiplePersonsWeight,
		})
	}

	for _, obj := range objects {
		events = append(events, Event{
			Kind:   ProhibitedObject,
			Detail: fmt.Sprintf("Prohibited object: %s (%.2f)", obj.Label, obj.Confidence),
			Weight: cfg.ObjectWeight(obj.Label),
		})
	}

	if face.Present {
		if face.Gaze != gaze.Forward {
			events = append(events, Event{
				Kind:   GazeShift,
				Detail: "Gaze: " + face.Gaze.String(),
				Weight: cfg.GazeShiftWeight,
			})
		}
		if face.EyeStatus == gaze.EyesNotVisible {
			events = append(events, Event{
				Kind:   EyesNotVisible,
				Detail: "Eyes not visible",
				Weight: cfg.EyesNotVisibleWeight,
			})
		}
	}

	// Saturate while summing so large weights cannot wrap around.
	risk := 0
	for _, e := range events {
		risk = min(risk+Clamp(e.Weight), MaxRisk)
	}

	return Assessment{
		Events: events,
		Risk:   risk,
		Band:   cfg.Band(risk),
	}
}
