// Package session runs one monitoring session: the capture, perceive,
// decide loop with its no-face timeout, heartbeat cadence and stop
// signals.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"github.com/teslashibe/go-proctor/pkg/remote"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// Deps are the collaborators of a Controller.
type Deps struct {
	Camera  FrameSource
	Faces   FaceDetector
	Objects ObjectDetector
	Gaze    GazeEstimator

	// Reporter receives heartbeats and violations. Nil disables sync.
	Reporter Reporter

	// Status is polled for the remote exam-ended flag. Nil means the exam
	// never ends remotely.
	Status remote.StatusChecker

	Observers []Observer
	Logger    *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Controller drives a session. Step and Run must be called from a single
// goroutine; the accessors are safe from any goroutine.
type Controller struct {
	config Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
	perc   perception

	stop      chan string
	examEnded atomic.Bool

	// Owned by the loop goroutine.
	lastFrameAt time.Time
	stopped     bool
	motion      motion

	mu      sync.RWMutex
	state   State
	last    Snapshot
	history []HistoryEntry
}

// New creates a controller. The session ID is generated if empty.
func New(cfg Config, deps Deps) *Controller {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	logger := log.Or(deps.Logger).With(
		"session_id", cfg.SessionID,
		"student_id", cfg.StudentID,
		"exam_id", cfg.ExamID,
	)

	return &Controller{
		config: cfg,
		deps:   deps,
		logger: logger,
		now:    deps.Clock,
		perc: perception{
			faces:              deps.Faces,
			gaze:               deps.Gaze,
			violations:         cfg.Violation,
			countObjectPersons: cfg.CountObjectPersons,
			logger:             logger,
		},
		stop:   make(chan string, 1),
		motion: newMotion(cfg),
		state: State{
			SessionID: cfg.SessionID,
			StudentID: cfg.StudentID,
			ExamID:    cfg.ExamID,
			Phase:     PhaseStarting,
		},
	}
}

// SessionID returns the session identifier.
func (c *Controller) SessionID() string {
	return c.config.SessionID
}

// Start opens the camera and, in auto mode, waits for the exam to start.
// A camera failure yields an ERROR command and ends the session.
func (c *Controller) Start(ctx context.Context) (Command, error) {
	if err := c.deps.Camera.Open(ctx); err != nil {
		cmd := Command{Kind: Error, Reason: err.Error()}
		c.finish(cmd)
		return cmd, err
	}

	if c.config.AutoStart && c.deps.Status != nil {
		if reason, started := c.waitForStart(ctx); !started {
			return c.finish(Command{Kind: StopExam, Reason: reason}), nil
		}
	}

	now := c.now()
	c.mu.Lock()
	c.state.Phase = PhaseMonitoring
	c.state.StartedAt = now
	c.state.LastFaceSeenAt = now
	c.mu.Unlock()
	c.lastFrameAt = now

	c.logger.Info("monitoring started")
	return Command{Kind: Continue}, nil
}

// waitForStart polls the exam status until it is active. Lookup errors
// count as active. It returns the stop reason if stopped while waiting.
func (c *Controller) waitForStart(ctx context.Context) (string, bool) {
	c.logger.Info("waiting for exam to start")
	ticker := time.NewTicker(c.config.StatusPollInterval)
	defer ticker.Stop()

	for {
		active, err := c.deps.Status.ExamActive(ctx, c.config.StudentID, c.config.ExamID)
		if err != nil {
			c.logger.Warn("exam status lookup failed", "error", err)
		}
		if active || err != nil {
			return "", true
		}
		select {
		case <-ctx.Done():
			return ReasonOperatorStop, false
		case reason := <-c.stop:
			return reason, false
		case <-ticker.C:
		}
	}
}

// Run starts the session and steps it until a terminal command. It
// returns that command, plus an error for abnormal endings.
func (c *Controller) Run(ctx context.Context) (Command, error) {
	if cmd, err := c.Start(ctx); err != nil || cmd.Terminal() {
		return cmd, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.deps.Status != nil {
		go c.watchStatus(watchCtx)
	}

	for {
		cmd, err := c.Step(ctx)
		if err != nil {
			return cmd, err
		}
		if cmd.Terminal() {
			return cmd, nil
		}

		if c.Snapshot().Placeholder && c.config.PlaceholderDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.config.PlaceholderDelay):
			}
		}
	}
}

// watchStatus polls the remote exam status and raises the exam-ended
// flag once it reads inactive.
func (c *Controller) watchStatus(ctx context.Context) {
	ticker := time.NewTicker(c.config.StatusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, err := c.deps.Status.ExamActive(ctx, c.config.StudentID, c.config.ExamID)
			if err != nil {
				c.logger.Debug("exam status lookup failed", "error", err)
				continue
			}
			if !active {
				c.examEnded.Store(true)
				return
			}
		}
	}
}

// Stop asks the loop to end at the next iteration boundary.
func (c *Controller) Stop(reason string) {
	if reason == "" {
		reason = ReasonOperatorStop
	}
	select {
	case c.stop <- reason:
	default:
	}
}

// EndExam raises the exam-ended flag as if read from the remote store.
func (c *Controller) EndExam() {
	c.examEnded.Store(true)
}

// Step processes one frame and returns the command for it.
func (c *Controller) Step(ctx context.Context) (Command, error) {
	if c.stopped {
		return Command{}, ErrStopped
	}
	if c.State().Phase != PhaseMonitoring {
		return Command{}, ErrNotStarted
	}

	// Stop signals are checked before any work.
	if ctx.Err() != nil {
		return c.finish(Command{Kind: StopExam, Reason: ReasonOperatorStop}), nil
	}
	select {
	case reason := <-c.stop:
		return c.finish(Command{Kind: StopExam, Reason: reason}), nil
	default:
	}
	if c.examEnded.Load() {
		return c.finish(Command{Kind: StopExam, Reason: ReasonExamEnded}), nil
	}

	f, err := c.deps.Camera.Read()
	switch {
	case errors.Is(err, camera.ErrReconnectExhausted):
		if !c.config.RetryForever {
			cmd := Command{Kind: Error, Reason: "camera reconnect window exhausted"}
			return c.finish(cmd), err
		}
		c.logger.Warn("camera reconnect window exhausted, retrying")
		if rerr := c.deps.Camera.Reconnect(); rerr != nil {
			return c.finish(Command{Kind: Error, Reason: rerr.Error()}), rerr
		}
	case err != nil:
		return c.finish(Command{Kind: Error, Reason: err.Error()}), err
	}

	return c.process(f), nil
}

func (c *Controller) process(f frame.Frame) Command {
	now := c.now()

	c.mu.Lock()
	c.state.FrameCounter++
	counter := c.state.FrameCounter
	c.mu.Unlock()

	snap := c.perc.run(f, c.deps.Objects.Observe)
	snap.SessionID = c.config.SessionID
	snap.StudentID = c.config.StudentID
	snap.ExamID = c.config.ExamID
	snap.Frame = counter
	snap.Camera = c.deps.Camera.State().String()
	if snap.At.IsZero() {
		snap.At = now
	}
	snap.MovementAlert = c.motion.observe(f)
	if snap.MovementAlert && snap.Band.Rank() < violation.BandWarning.Rank() {
		snap.Band = violation.BandWarning
	}

	c.mu.Lock()
	c.state.CachedObjects = snap.Objects
	if f.Placeholder {
		c.state.CameraOutage += now.Sub(c.lastFrameAt)
	}
	if snap.Face.Present && now.After(c.state.LastFaceSeenAt) {
		c.state.LastFaceSeenAt = now
		c.state.CameraOutage = 0
	}
	noFace := now.Sub(c.state.LastFaceSeenAt) - c.state.CameraOutage
	c.mu.Unlock()
	c.lastFrameAt = now

	if !snap.Face.Present && noFace >= c.config.NoFaceTimeout {
		timeout := &NoFaceTimeout{Elapsed: noFace}
		snap.Command = Command{Kind: StopExam, Reason: timeout.Error()}
		c.publish(f, snap)
		c.logger.Warn("no face timeout", "elapsed", noFace)
		return c.finish(snap.Command)
	}

	if !snap.Face.Present && noFace >= c.config.NoFaceWarning {
		left := int((c.config.NoFaceTimeout - noFace).Seconds())
		snap.Warning = fmt.Sprintf("Face not visible! Auto-stop in %ds", left)
	}

	if !snap.Assessment.Empty() {
		if c.deps.Reporter != nil {
			c.deps.Reporter.LogViolation(c.config.StudentID, c.config.ExamID, snap.Assessment)
		}
		c.record(now, snap)
	}

	c.mu.RLock()
	due := c.state.LastHeartbeatAt.IsZero() || now.Sub(c.state.LastHeartbeatAt) >= c.config.HeartbeatInterval
	c.mu.RUnlock()
	if due {
		if c.deps.Reporter != nil {
			c.deps.Reporter.Heartbeat(c.config.StudentID, c.config.ExamID)
		}
		c.mu.Lock()
		c.state.LastHeartbeatAt = now
		c.mu.Unlock()
	}

	snap.Command = Command{Kind: Continue}
	c.publish(f, snap)
	return snap.Command
}

func (c *Controller) publish(f frame.Frame, snap Snapshot) {
	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
	for _, o := range c.deps.Observers {
		o.Observe(f, snap)
	}
}

func (c *Controller) record(at time.Time, snap Snapshot) {
	if c.config.HistorySize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, HistoryEntry{
		At:     at,
		Frame:  snap.Frame,
		Events: snap.Events,
		Risk:   snap.Risk,
		Band:   snap.Band,
	})
	if over := len(c.history) - c.config.HistorySize; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}
}

// finish ends the session: the camera is released and nothing further is
// reported.
func (c *Controller) finish(cmd Command) Command {
	if c.stopped {
		return cmd
	}
	c.stopped = true

	c.mu.Lock()
	c.state.Phase = PhaseStopped
	c.last.Command = cmd
	n := len(c.history)
	c.mu.Unlock()

	if err := c.deps.Camera.Close(); err != nil {
		c.logger.Warn("camera close failed", "error", err)
	}

	c.logger.Info("session ended", "command", cmd.String(), "violation_frames", n)
	for _, h := range c.History(10) {
		c.logger.Info("recent violation", "frame", h.Frame, "risk", h.Risk, "status", h.Band, "events", len(h.Events))
	}
	return cmd
}

// State returns a copy of the session state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	s.CachedObjects = append([]detection.Record(nil), c.state.CachedObjects...)
	return s
}

// Snapshot returns the most recent frame result.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// History returns up to n most recent violation frames, oldest first.
// n <= 0 returns all.
func (c *Controller) History(n int) []HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.history
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]HistoryEntry(nil), h...)
}
