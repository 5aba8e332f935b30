package session

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// FrameSource is the camera as the controller sees it.
type FrameSource interface {
	Open(ctx context.Context) error
	Read() (frame.Frame, error)
	Reconnect() error
	Close() error
	State() camera.State
}

// FaceDetector finds faces on every frame.
type FaceDetector interface {
	Detect(f frame.Frame) (detection.FaceObservation, error)
}

// ObjectDetector returns the object batch for a frame, honoring its own
// cadence.
type ObjectDetector interface {
	Observe(f frame.Frame) (detection.ObjectBatch, error)
}

// ObjectEvaluator runs object detection now, without cadence or cache.
type ObjectEvaluator interface {
	Evaluate(f frame.Frame) (detection.ObjectBatch, error)
}

// GazeEstimator derives the face state from a face observation.
type GazeEstimator interface {
	Estimate(f frame.Frame, obs *detection.FaceObservation) (gaze.FaceState, error)
}

// Reporter receives heartbeats and violations. Calls must not block.
type Reporter interface {
	Heartbeat(studentID, examID string)
	LogViolation(studentID, examID string, a violation.Assessment)
}

// Observer receives every processed frame with its snapshot. The frame
// must not be modified.
type Observer interface {
	Observe(f frame.Frame, snap Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(f frame.Frame, snap Snapshot)

// Observe implements Observer.
func (fn ObserverFunc) Observe(f frame.Frame, snap Snapshot) {
	fn(f, snap)
}

// perception runs detectors and the aggregator for one frame. Detector
// failures are logged and count as no detections.
type perception struct {
	faces              FaceDetector
	gaze               GazeEstimator
	violations         violation.Config
	countObjectPersons bool
	logger             *slog.Logger
}

func (p *perception) run(f frame.Frame, objects func(frame.Frame) (detection.ObjectBatch, error)) Snapshot {
	snap := Snapshot{
		FrameSeq:    f.Seq,
		At:          f.CapturedAt,
		Placeholder: f.Placeholder,
	}

	obs, err := p.faces.Detect(f)
	if err != nil {
		p.logger.Warn("face detection failed", "frame", f.Seq, "error", err)
	}
	face, err := p.gaze.Estimate(f, &obs)
	if err != nil {
		p.logger.Warn("eye detection failed", "frame", f.Seq, "error", err)
	}

	batch, err := objects(f)
	if err != nil {
		p.logger.Warn("object detection failed", "frame", f.Seq, "error", err)
	}

	persons := obs.Count()
	if p.countObjectPersons && len(batch.Persons) > persons {
		persons = len(batch.Persons)
	}

	snap.Face = face
	snap.Faces = obs.Faces
	snap.PersonCount = persons
	snap.Objects = batch.Objects
	snap.Persons = batch.Persons
	snap.Assessment = violation.Aggregate(p.violations, face, persons, batch.Objects)
	return snap
}
