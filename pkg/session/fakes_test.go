package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

const (
	testW = 64
	testH = 48
)

// fakeCamera replays a script of reads, then returns live frames.
type fakeCamera struct {
	mu         sync.Mutex
	openErr    error
	script     []readResult
	seq        uint64
	state      camera.State
	closes     int
	reconnects int
}

type readResult struct {
	placeholder bool
	err         error
	fill        byte // pixel value of a live frame
}

func (c *fakeCamera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.state = camera.StateOpen
	return nil
}

func (c *fakeCamera) Read() (frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == camera.StateClosed {
		return frame.Frame{}, camera.ErrClosed
	}
	c.seq++
	var r readResult
	if len(c.script) > 0 {
		r, c.script = c.script[0], c.script[1:]
	}
	if r.placeholder || r.err != nil {
		c.state = camera.StateReconnecting
		return frame.Blank(c.seq, time.Time{}, testW, testH), r.err
	}
	c.state = camera.StateOpen
	px := make([]byte, testW*testH*frame.Channels)
	for i := range px {
		px[i] = r.fill
	}
	return frame.New(c.seq, time.Time{}, testW, testH, px), nil
}

func (c *fakeCamera) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
	return nil
}

func (c *fakeCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.state = camera.StateClosed
	return nil
}

func (c *fakeCamera) State() camera.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// fakeClock advances only when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeReporter records sync calls in order.
type fakeReporter struct {
	mu         sync.Mutex
	calls      []string
	violations []violation.Assessment
}

func (r *fakeReporter) Heartbeat(studentID, examID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "heartbeat")
}

func (r *fakeReporter) LogViolation(studentID, examID string, a violation.Assessment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "violation")
	r.violations = append(r.violations, a)
}

func (r *fakeReporter) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (r *fakeReporter) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// scene is what the mock detectors currently "see".
type scene struct {
	mu      sync.Mutex
	faces   []detection.Box
	objects []detection.Record
	eyes    int
}

func (s *scene) set(faces []detection.Box, objects []detection.Record) {
	s.mu.Lock()
	s.faces, s.objects = faces, objects
	s.mu.Unlock()
}

func centerFace() []detection.Box {
	return []detection.Box{{X1: 24, Y1: 10, X2: 40, Y2: 26}}
}

type rig struct {
	cam      *fakeCamera
	clock    *fakeClock
	reporter *fakeReporter
	scene    *scene
	objects  *detection.Mock
	ctrl     *Controller
}

func newRig(cfg Config) *rig {
	return newRigCadence(cfg, 1)
}

func newRigCadence(cfg Config, cadence int) *rig {
	r := &rig{
		cam:      &fakeCamera{},
		clock:    newClock(),
		reporter: &fakeReporter{},
		scene:    &scene{eyes: 2},
	}
	r.scene.set(centerFace(), nil)

	faceMock := &detection.Mock{Variant: detection.KindFace, DetectFunc: func(f frame.Frame) ([]detection.Record, error) {
		if f.Placeholder {
			return nil, nil
		}
		r.scene.mu.Lock()
		defer r.scene.mu.Unlock()
		var out []detection.Record
		for _, b := range r.scene.faces {
			out = append(out, detection.Record{Label: "face", Confidence: 1, Box: b})
		}
		return out, nil
	}}
	eyeMock := &detection.Mock{Variant: detection.KindEye, DetectFunc: func(f frame.Frame) ([]detection.Record, error) {
		r.scene.mu.Lock()
		defer r.scene.mu.Unlock()
		out := make([]detection.Record, r.scene.eyes)
		for i := range out {
			out[i] = detection.Record{Confidence: 1, Box: detection.Box{X1: i * 5, Y1: 2, X2: i*5 + 4, Y2: 6}}
		}
		return out, nil
	}}
	r.objects = &detection.Mock{Variant: detection.KindObject, DetectFunc: func(f frame.Frame) ([]detection.Record, error) {
		if f.Placeholder {
			return nil, nil
		}
		r.scene.mu.Lock()
		defer r.scene.mu.Unlock()
		return append([]detection.Record(nil), r.scene.objects...), nil
	}}

	faces := detection.NewFaceAdapter(faceMock, eyeMock, detection.DefaultFaceConfig(), log.Nop())
	objCfg := detection.DefaultObjectConfig()
	objCfg.Cadence = cadence
	objects := detection.NewObjectAdapter(r.objects, objCfg, log.Nop())

	if cfg.StudentID == "" {
		cfg.StudentID, cfg.ExamID = "stu-1", "exam-1"
	}
	r.ctrl = New(cfg, Deps{
		Camera:   r.cam,
		Faces:    faces,
		Objects:  objects,
		Gaze:     gaze.NewEstimator(gaze.DefaultConfig(), faces),
		Reporter: r.reporter,
		Logger:   log.Nop(),
		Clock:    r.clock.Now,
	})
	return r
}

// staticStatus answers ExamActive from a function.
type staticStatus func() (bool, error)

func (s staticStatus) ExamActive(ctx context.Context, studentID, examID string) (bool, error) {
	return s()
}

var errBoom = errors.New("boom")
