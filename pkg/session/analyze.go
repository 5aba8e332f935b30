package session

import (
	"log/slog"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Analyzer runs the same perception and aggregation as a session on a
// single frame, with no session state and no object cadence.
type Analyzer struct {
	perc    perception
	objects ObjectEvaluator
}

// NewAnalyzer creates a stateless analyzer.
func NewAnalyzer(faces FaceDetector, objects ObjectEvaluator, est GazeEstimator, cfg violation.Config, countObjectPersons bool, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		perc: perception{
			faces:              faces,
			gaze:               est,
			violations:         cfg,
			countObjectPersons: countObjectPersons,
			logger:             log.Or(logger).With("component", "analyze"),
		},
		objects: objects,
	}
}

// Analyze returns detections, violations, risk score and band for f.
func (a *Analyzer) Analyze(f frame.Frame) Snapshot {
	snap := a.perc.run(f, a.objects.Evaluate)
	snap.Frame = 1
	snap.Command = Command{Kind: Continue}
	return snap
}
