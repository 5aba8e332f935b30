package detection

import (
	"log/slog"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/frame"
)

// FaceConfig holds face adapter configuration.
type FaceConfig struct {
	// PersonFloor is the minimum confidence for a face to count as a person.
	PersonFloor float64 `json:"person_floor"`

	// MinEyeSize drops eye boxes narrower than this many pixels.
	MinEyeSize int `json:"min_eye_size"`
}

// DefaultFaceConfig returns production defaults.
func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		PersonFloor: 0.65,
		MinEyeSize:  0,
	}
}

// FaceObservation is the face adapter output for one frame.
type FaceObservation struct {
	// Faces above the person floor, largest first. Faces[0] is the
	// candidate, the rest are additional persons.
	Faces []Record `json:"faces"`

	// Eyes holds eye boxes per face index, in frame coordinates. Only
	// faces whose eyes were looked for have an entry.
	Eyes map[int][]Box `json:"eyes,omitempty"`
}

// Boxes returns the face boxes, largest first.
func (o FaceObservation) Boxes() []Box {
	out := make([]Box, len(o.Faces))
	for i, r := range o.Faces {
		out[i] = r.Box
	}
	return out
}

// Count is the number of faces that passed the person floor.
func (o FaceObservation) Count() int {
	return len(o.Faces)
}

// Candidate returns the largest face.
func (o FaceObservation) Candidate() (Record, bool) {
	if len(o.Faces) == 0 {
		return Record{}, false
	}
	return o.Faces[0], true
}

// FaceAdapter runs the face detector on every frame and the eye detector
// on demand inside a face region.
type FaceAdapter struct {
	faces  Detector
	eyes   Detector
	config FaceConfig
	logger *slog.Logger
}

// NewFaceAdapter wraps a face detector and an optional eye detector.
func NewFaceAdapter(faces, eyes Detector, cfg FaceConfig, logger *slog.Logger) *FaceAdapter {
	return &FaceAdapter{
		faces:  faces,
		eyes:   eyes,
		config: cfg,
		logger: log.Or(logger).With("component", "faces"),
	}
}

// Detect finds faces in f. On detector failure it returns an empty
// observation and a *DetectorError.
func (a *FaceAdapter) Detect(f frame.Frame) (FaceObservation, error) {
	var obs FaceObservation
	if f.Placeholder || f.Empty() {
		return obs, nil
	}

	raw, err := a.faces.Detect(f)
	if err != nil {
		return obs, &DetectorError{Kind: KindFace, Err: err}
	}

	for _, r := range raw {
		if r.Confidence < a.config.PersonFloor || r.Box.Area() == 0 {
			continue
		}
		if r.Label == "" {
			r.Label = "face"
		}
		obs.Faces = append(obs.Faces, r)
	}
	SortByArea(obs.Faces)

	if len(obs.Faces) > 1 {
		a.logger.Debug("multiple faces detected", "frame", f.Seq, "count", len(obs.Faces))
	}
	return obs, nil
}

// DetectEyes looks for eyes inside face i and records them on obs. The
// returned boxes are in frame coordinates.
func (a *FaceAdapter) DetectEyes(f frame.Frame, obs *FaceObservation, i int) ([]Box, error) {
	if i < 0 || i >= len(obs.Faces) {
		return nil, nil
	}
	eyes, err := a.Eyes(f, obs.Faces[i].Box)
	if obs.Eyes == nil {
		obs.Eyes = make(map[int][]Box)
	}
	obs.Eyes[i] = eyes
	return eyes, err
}

// Eyes runs the eye detector on the face region of f.
func (a *FaceAdapter) Eyes(f frame.Frame, face Box) ([]Box, error) {
	if a.eyes == nil {
		return nil, nil
	}
	roi := f.Crop(face.Rect())
	if roi.Empty() {
		return nil, nil
	}

	raw, err := a.eyes.Detect(roi)
	if err != nil {
		return nil, &DetectorError{Kind: KindEye, Err: err}
	}

	// Crop clips to the frame, so the ROI origin may differ from the box.
	origin := face.Rect().Intersect(f.Bounds()).Min
	var out []Box
	for _, r := range raw {
		if r.Box.Width() < a.config.MinEyeSize {
			continue
		}
		out = append(out, r.Box.Translate(origin.X, origin.Y))
	}
	return out, nil
}

// Close releases both detectors.
func (a *FaceAdapter) Close() error {
	err := a.faces.Close()
	if a.eyes != nil {
		if eerr := a.eyes.Close(); err == nil {
			err = eerr
		}
	}
	return err
}
