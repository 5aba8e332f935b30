package web

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// statusMessage is pushed on /ws/status for every frame. Pixels stay
// on the camera stream.
type statusMessage struct {
	Type string `json:"type"`
	session.Snapshot
}

func newStatusMessage(snap session.Snapshot) statusMessage {
	return statusMessage{Type: "status", Snapshot: snap}
}

// eventMessage is pushed on /ws/events for violation frames and the
// terminal command.
type eventMessage struct {
	Type string `json:"type"` // violation, command
	session.HistoryEntry
	Command *session.Command `json:"command,omitempty"`
	Warning string           `json:"warning,omitempty"`
}

func newEventMessage(snap session.Snapshot) eventMessage {
	m := eventMessage{
		Type: "violation",
		HistoryEntry: session.HistoryEntry{
			At:     snap.At,
			Frame:  snap.Frame,
			Events: snap.Events,
			Risk:   snap.Risk,
			Band:   snap.Band,
		},
		Warning: snap.Warning,
	}
	if snap.Command.Terminal() {
		m.Type = "command"
		cmd := snap.Command
		m.Command = &cmd
	}
	return m
}

func encodeJSON(v any) (hub.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return hub.Message{}, err
	}
	return hub.NewJSONMessage(data), nil
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	State    session.State    `json:"state"`
	Snapshot session.Snapshot `json:"snapshot"`
	Clients  map[string]int   `json:"clients"`
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	Image string `json:"image"` // base64 or data URL
}

// AnalyzeResponse is the single-shot analysis result.
type AnalyzeResponse struct {
	Detections  []detection.Record `json:"detections"`
	Face        gaze.FaceState     `json:"face"`
	PersonCount int                `json:"person_count"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	violation.Assessment
}

// StopRequest is the optional body of POST /api/session/stop.
type StopRequest struct {
	Reason string `json:"reason"`
}

func unavailable(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": what + " not configured",
	})
}

// handleHealth reports liveness and which features are wired.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "online",
		"session": s.deps.Session != nil,
		"analyze": s.deps.Analyzer != nil && s.deps.Decode != nil,
		"camera":  s.deps.Encoder != nil,
	})
}

// handleStatus returns the session state and the latest snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.deps.Session == nil {
		return unavailable(c, "session")
	}
	return c.JSON(StatusResponse{
		State:    s.deps.Session.State(),
		Snapshot: s.deps.Session.Snapshot(),
		Clients: map[string]int{
			"status": s.statusHub.ClientCount(),
			"events": s.eventsHub.ClientCount(),
			"camera": s.cameraHub.ClientCount(),
		},
	})
}

// handleViolations returns recent violation frames, oldest first.
func (s *Server) handleViolations(c *fiber.Ctx) error {
	if s.deps.Session == nil {
		return unavailable(c, "session")
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a non-negative integer",
			})
		}
		limit = n
	}
	history := s.deps.Session.History(limit)
	if history == nil {
		history = []session.HistoryEntry{}
	}
	return c.JSON(history)
}

// handleAnalyze decodes one image and runs the full detection and
// aggregation on it, with no session state.
func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	if s.deps.Analyzer == nil || s.deps.Decode == nil {
		return unavailable(c, "analyzer")
	}

	var req AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if strings.TrimSpace(req.Image) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No image provided",
		})
	}

	f, err := s.deps.Decode(req.Image)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Image decode failed: " + err.Error(),
		})
	}

	s.analyzeMu.Lock()
	snap := s.deps.Analyzer.Analyze(f)
	s.analyzeMu.Unlock()

	dets := snap.Detections()
	if dets == nil {
		dets = []detection.Record{}
	}
	return c.JSON(AnalyzeResponse{
		Detections:  dets,
		Face:        snap.Face,
		PersonCount: snap.PersonCount,
		Width:       f.Width,
		Height:      f.Height,
		Assessment:  snap.Assessment,
	})
}

// handleStop asks the session to stop at the next frame boundary.
func (s *Server) handleStop(c *fiber.Ctx) error {
	if s.deps.Session == nil {
		return unavailable(c, "session")
	}
	var req StopRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}
	if req.Reason == "" {
		req.Reason = session.ReasonOperatorStop
	}

	s.deps.Session.Stop(req.Reason)
	s.logger.Info("operator stop requested", "reason", req.Reason, "ip", c.IP())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "stopping",
		"reason": req.Reason,
	})
}
