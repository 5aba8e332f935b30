package detection

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/frame"
)

// PersonLabel is the raw label object detectors use for people.
const PersonLabel = "person"

// ObjectConfig holds object adapter configuration.
type ObjectConfig struct {
	// ConfidenceFloor drops prohibited-object detections below it. Kept
	// low because phones and books are small and seen off-angle.
	ConfidenceFloor float64 `json:"confidence_floor"`

	// PersonFloor drops person detections below it. Kept high so posters
	// and reflections do not count as people.
	PersonFloor float64 `json:"person_floor"`

	// Cadence evaluates the detector on every Nth frame. 1 means every frame.
	Cadence int `json:"cadence"`

	// Taxonomy maps raw detector labels to prohibited-item labels.
	// Raw labels missing from the map are ignored.
	Taxonomy map[string]string `json:"taxonomy"`
}

// DefaultTaxonomy returns the prohibited-item allow-list.
func DefaultTaxonomy() map[string]string {
	return map[string]string{
		"cell phone":   "cell phone",
		"mobile phone": "cell phone",
		"phone":        "cell phone",
		"laptop":       "laptop",
		"book":         "book",
		"remote":       "remote",
		"tablet":       "tablet",
		"ipad":         "tablet",
		"keyboard":     "keyboard",
		"mouse":        "mouse",
	}
}

// DefaultObjectConfig returns production defaults.
func DefaultObjectConfig() ObjectConfig {
	return ObjectConfig{
		ConfidenceFloor: 0.30,
		PersonFloor:     0.65,
		Cadence:         3,
		Taxonomy:        DefaultTaxonomy(),
	}
}

// ObjectBatch is the result of one object-detector evaluation.
type ObjectBatch struct {
	FrameSeq uint64   `json:"frame_seq"` // Frame the batch was evaluated on
	Objects  []Record `json:"objects"`   // Prohibited items, canonical labels
	Persons  []Record `json:"persons"`   // People above the person floor
}

// ObjectAdapter runs the object detector on a cadence and caches the
// last evaluation for the frames in between.
type ObjectAdapter struct {
	detector Detector
	config   ObjectConfig
	logger   *slog.Logger

	mu     sync.Mutex
	frames uint64
	cached ObjectBatch
}

// NewObjectAdapter wraps an object detector.
func NewObjectAdapter(d Detector, cfg ObjectConfig, logger *slog.Logger) *ObjectAdapter {
	if cfg.Cadence < 1 {
		cfg.Cadence = 1
	}
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = DefaultTaxonomy()
	}
	return &ObjectAdapter{
		detector: d,
		config:   cfg,
		logger:   log.Or(logger).With("component", "objects"),
	}
}

// Observe returns the object batch for f. The detector runs on the first
// frame and every Cadence frames after; other frames get the cached batch.
// A failed evaluation replaces the cache with an empty batch and returns
// a *DetectorError alongside it.
func (a *ObjectAdapter) Observe(f frame.Frame) (ObjectBatch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	due := a.frames%uint64(a.config.Cadence) == 0
	a.frames++
	if !due {
		return a.cached, nil
	}

	batch, err := a.Evaluate(f)
	a.cached = batch
	return batch, err
}

// Cached returns the last evaluated batch without advancing the cadence.
func (a *ObjectAdapter) Cached() ObjectBatch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cached
}

// Reset clears the cache and restarts the cadence.
func (a *ObjectAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frames = 0
	a.cached = ObjectBatch{}
}

// Evaluate runs the detector on f now, ignoring cadence and cache.
func (a *ObjectAdapter) Evaluate(f frame.Frame) (ObjectBatch, error) {
	batch := ObjectBatch{FrameSeq: f.Seq}
	if f.Placeholder || f.Empty() {
		return batch, nil
	}

	raw, err := a.detector.Detect(f)
	if err != nil {
		return batch, &DetectorError{Kind: KindObject, Err: err}
	}

	for _, r := range raw {
		label := strings.ToLower(strings.TrimSpace(r.Label))
		if label == PersonLabel {
			if r.Confidence >= a.config.PersonFloor {
				r.Label = PersonLabel
				batch.Persons = append(batch.Persons, r)
			}
			continue
		}
		canonical, ok := a.config.Taxonomy[label]
		if !ok || r.Confidence < a.config.ConfidenceFloor {
			continue
		}
		r.Label = canonical
		batch.Objects = append(batch.Objects, r)
	}

	if len(batch.Objects) > 0 {
		a.logger.Debug("prohibited objects detected", "frame", f.Seq, "labels", Labels(batch.Objects))
	}
	return batch, nil
}

// Close releases the underlying detector.
func (a *ObjectAdapter) Close() error {
	return a.detector.Close()
}
