// Proctor - webcam exam monitor
// Watches the candidate's camera, scores violations and syncs them to the
// exam backend until the exam stops.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/metrics"
	"github.com/teslashibe/go-proctor/pkg/opencv"
	"github.com/teslashibe/go-proctor/pkg/remote"
	"github.com/teslashibe/go-proctor/pkg/remote/postgres"
	"github.com/teslashibe/go-proctor/pkg/remote/postgrest"
	"github.com/teslashibe/go-proctor/pkg/remote/sheets"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/web"
)

func main() {
	cfg := parseFlags()

	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "config: %s\n", p)
		}
		os.Exit(2)
	}

	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, err := run(ctx, cfg)
	if err != nil {
		log.Error("session failed", "command", cmd.String(), "error", err)
		os.Exit(1)
	}
	log.Info("session ended", "command", cmd.String())
	if cmd.Kind == session.Error {
		os.Exit(1)
	}
}

// parseFlags loads the environment configuration and applies flags on top.
func parseFlags() config.Config {
	cfg := config.Load()

	studentID := flag.String("student_id", cfg.Session.StudentID, "Student identifier")
	examID := flag.String("exam_id", cfg.Session.ExamID, "Exam identifier")
	auto := flag.Bool("auto", cfg.Session.AutoStart, "Wait for the exam to start remotely before monitoring")
	dashboard := flag.Bool("dashboard", cfg.DashboardEnabled, "Serve the operator dashboard")
	addr := flag.String("addr", cfg.Dashboard.Addr, "Dashboard listen address")
	store := flag.String("store", cfg.Store, "Remote store: supabase, postgres, sheets, none")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	flag.Parse()

	cfg.Session.StudentID = *studentID
	cfg.Session.ExamID = *examID
	cfg.Session.AutoStart = *auto
	cfg.DashboardEnabled = *dashboard
	cfg.Dashboard.Addr = *addr
	cfg.Store = *store
	cfg.LogLevel = *logLevel
	return cfg
}

func run(ctx context.Context, cfg config.Config) (session.Command, error) {
	logger := log.L()
	cfg.Session.SessionID = uuid.NewString()
	cfg.Sync.SessionID = cfg.Session.SessionID

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return session.Command{Kind: session.Error, Reason: err.Error()}, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store failed", "store", store.Name(), "error", err)
		}
	}()
	logger.Info("remote store ready", "store", store.Name())

	m := metrics.New()
	gateway := remote.NewGateway(store, cfg.Sync, logger)
	gateway.OnResult = m.SyncResult

	live, err := newPerception(cfg, logger)
	if err != nil {
		return session.Command{Kind: session.Error, Reason: err.Error()}, err
	}
	defer live.Close()

	deps := session.Deps{
		Camera:    camera.NewSource(cfg.Camera, opencv.NewCapture(cfg.Camera), logger),
		Faces:     live.faces,
		Objects:   live.objects,
		Gaze:      live.gaze,
		Reporter:  gateway,
		Observers: []session.Observer{m},
		Logger:    logger,
	}
	if status, ok := store.(remote.StatusChecker); ok {
		deps.Status = status
	}

	var dashboard *web.Server
	if cfg.DashboardEnabled {
		// The analyze endpoint gets its own detectors; the loaded models
		// are not safe to share with the session loop.
		offline, err := newPerception(cfg, logger)
		if err != nil {
			return session.Command{Kind: session.Error, Reason: err.Error()}, err
		}
		defer offline.Close()

		dashboard = web.NewServer(cfg.Dashboard, web.Deps{
			Analyzer: session.NewAnalyzer(offline.faces, offline.objects, offline.gaze,
				cfg.Session.Violation, cfg.Session.CountObjectPersons, logger),
			Decode:  opencv.DecodeBase64,
			Encoder: opencv.NewRenderer(),
			Metrics: m.Handler(),
			Logger:  logger,
		})
	}

	if dashboard != nil {
		deps.Observers = append(deps.Observers, dashboard)
	}
	ctrl := session.New(cfg.Session, deps)
	if dashboard != nil {
		dashboard.SetSession(ctrl)
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)

	g.Go(func() error {
		return gateway.Run(gctx)
	})
	if dashboard != nil {
		g.Go(func() error {
			return dashboard.Run(serveCtx)
		})
	}

	var cmd session.Command
	g.Go(func() error {
		defer stopServing()
		defer gateway.Close()

		var err error
		cmd, err = ctrl.Run(gctx)
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return cmd, err
	}
	return cmd, nil
}

// openStore builds the configured remote store.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (remote.Store, error) {
	switch cfg.Store {
	case config.StoreSupabase:
		return postgrest.New(cfg.PostgREST)
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.Postgres, logger)
	case config.StoreSheets:
		return sheets.New(ctx, cfg.Sheets)
	default:
		return remote.Discard{}, nil
	}
}

// perception is one set of loaded detectors and the adapters around them.
type perception struct {
	faces   *detection.FaceAdapter
	objects *detection.ObjectAdapter
	gaze    *gaze.Estimator
}

func newPerception(cfg config.Config, logger *slog.Logger) (*perception, error) {
	faceDet, err := newFaceDetector(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("face detector: %w", err)
	}

	eyeCfg := opencv.DefaultEyeCascade()
	eyeCfg.Path = cfg.Models.EyeCascade
	eyeDet, err := opencv.NewCascade(detection.KindEye, eyeCfg)
	if err != nil {
		faceDet.Close()
		return nil, fmt.Errorf("eye detector: %w", err)
	}

	yoloCfg := opencv.DefaultYOLOConfig()
	yoloCfg.ModelPath = cfg.Models.YOLO
	objDet, err := opencv.NewYOLO(yoloCfg)
	if err != nil {
		faceDet.Close()
		eyeDet.Close()
		return nil, fmt.Errorf("object detector: %w", err)
	}

	faces := detection.NewFaceAdapter(faceDet, eyeDet, cfg.Faces, logger)
	return &perception{
		faces:   faces,
		objects: detection.NewObjectAdapter(objDet, cfg.Objects, logger),
		gaze:    gaze.NewEstimator(cfg.Gaze, faces),
	}, nil
}

func newFaceDetector(m config.Models) (detection.Detector, error) {
	if m.FaceDetector == config.FaceYuNet {
		yc := opencv.DefaultYuNetConfig()
		yc.ModelPath = m.YuNet
		return opencv.NewYuNet(yc)
	}
	fc := opencv.DefaultFaceCascade()
	fc.Path = m.FaceCascade
	return opencv.NewCascade(detection.KindFace, fc)
}

// Close releases every loaded model.
func (p *perception) Close() {
	p.faces.Close()
	p.objects.Close()
}
