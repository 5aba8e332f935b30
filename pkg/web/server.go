// Package web serves the proctoring dashboard: session status, recent
// violations, single-shot analysis, operator stop, metrics and live
// websocket streams.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	accesslog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/session"
)

// Session is the running session as the dashboard sees it.
type Session interface {
	State() session.State
	Snapshot() session.Snapshot
	History(n int) []session.HistoryEntry
	Stop(reason string)
}

// Analyzer runs single-shot analysis on one frame.
type Analyzer interface {
	Analyze(f frame.Frame) session.Snapshot
}

// FrameEncoder renders a frame and its snapshot as JPEG.
type FrameEncoder interface {
	Encode(f frame.Frame, snap session.Snapshot) ([]byte, error)
}

// Config holds dashboard configuration.
type Config struct {
	Addr string `json:"addr"` // Listen address, e.g. ":8080"

	// StaticDir is served at / when set.
	StaticDir string `json:"static_dir"`

	// CameraInterval throttles the camera stream.
	CameraInterval time.Duration `json:"camera_interval"`

	// AccessLog enables fiber's request logger.
	AccessLog bool `json:"access_log"`

	// MaxImageBytes bounds analyze request bodies.
	MaxImageBytes int `json:"max_image_bytes"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		CameraInterval: 100 * time.Millisecond,
		MaxImageBytes:  8 * 1024 * 1024,
	}
}

// Deps are the optional collaborators of the server. Routes whose
// collaborator is nil answer 503.
type Deps struct {
	Session  Session
	Analyzer Analyzer
	Decode   func(image string) (frame.Frame, error)
	Encoder  FrameEncoder
	Metrics  http.Handler
	Logger   *slog.Logger
}

// Server is the dashboard server. It is also a session.Observer.
type Server struct {
	app    *fiber.App
	config Config
	deps   Deps
	logger *slog.Logger

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	eventsHub *hub.Hub
	cameraHub *hub.Hub

	mu         sync.Mutex
	lastCamera time.Time
	analyzeMu  sync.Mutex
}

// NewServer creates the dashboard server and its routes.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultConfig().MaxImageBytes
	}
	logger := log.Or(deps.Logger).With("component", "web")

	s := &Server{
		config:    cfg,
		deps:      deps,
		logger:    logger,
		statusHub: hub.New("status", logger),
		eventsHub: hub.New("events", logger),
		cameraHub: hub.New("camera", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Proctor Dashboard",
		DisableStartupMessage: true,
		BodyLimit:             cfg.MaxImageBytes * 2, // base64 overhead
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(accesslog.New())
	}

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/status", s.handleStatus)
	api.Get("/violations", s.handleViolations)
	api.Post("/analyze", s.handleAnalyze)
	api.Post("/session/stop", s.handleStop)

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.eventsHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.config.Addr)
		errc <- s.app.Listen(s.config.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// SetSession attaches the session after construction, for callers that
// build the server before the session it observes. Call it before Run.
func (s *Server) SetSession(sess Session) {
	s.deps.Session = sess
}

// StartHubs runs the hubs without the HTTP listener, for tests that
// drive the app directly.
func (s *Server) StartHubs(ctx context.Context) {
	go s.statusHub.Run(ctx)
	go s.eventsHub.Run(ctx)
	go s.cameraHub.Run(ctx)
}

// Observe broadcasts every snapshot on the status stream, violation
// frames on the events stream, and a throttled annotated JPEG on the
// camera stream.
func (s *Server) Observe(f frame.Frame, snap session.Snapshot) {
	if s.statusHub.ClientCount() > 0 {
		if err := s.statusHub.BroadcastJSON(newStatusMessage(snap)); err != nil {
			s.logger.Debug("encode status failed", "error", err)
		}
	}
	if !snap.Empty() || snap.Command.Terminal() {
		s.eventsHub.BroadcastJSON(newEventMessage(snap))
	}

	if s.deps.Encoder == nil || s.cameraHub.ClientCount() == 0 || !s.cameraDue() {
		return
	}
	data, err := s.deps.Encoder.Encode(f, snap)
	if err != nil {
		s.logger.Debug("encode camera frame failed", "error", err)
		return
	}
	s.cameraHub.BroadcastBinary(data)
}

func (s *Server) cameraDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if now.Sub(s.lastCamera) < s.config.CameraInterval {
		return false
	}
	s.lastCamera = now
	return true
}

func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if s.deps.Session != nil {
		if msg, err := encodeJSON(newStatusMessage(s.deps.Session.Snapshot())); err == nil {
			initial = append(initial, msg)
		}
	}
	if client := hub.NewClient(s.statusHub, c, initial...); client != nil {
		client.Run()
	}
}

func (s *Server) handleEventsWS(c *websocket.Conn) {
	var initial []hub.Message
	if s.deps.Session != nil {
		for _, h := range s.deps.Session.History(20) {
			if msg, err := encodeJSON(eventMessage{Type: "violation", HistoryEntry: h}); err == nil {
				initial = append(initial, msg)
			}
		}
	}
	if client := hub.NewClient(s.eventsHub, c, initial...); client != nil {
		client.Run()
	}
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	if client := hub.NewClient(s.cameraHub, c); client != nil {
		client.Run()
	}
}
