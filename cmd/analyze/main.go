// Analyze - single-shot proctor check of one image file
// Prints the snapshot (detections, violations, risk score, band) as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/opencv"
	"github.com/teslashibe/go-proctor/pkg/session"
)

func main() {
	cfg := config.Load()

	annotate := flag.String("annotate", "", "Write the annotated frame as JPEG to this path")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <image>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log.Init(*logLevel)
	if err := run(cfg, flag.Arg(0), *annotate); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, path, annotate string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := opencv.DecodeImage(data)
	if err != nil {
		return err
	}

	faceDet, err := newFaceDetector(cfg.Models)
	if err != nil {
		return fmt.Errorf("face detector: %w", err)
	}
	eyeCfg := opencv.DefaultEyeCascade()
	eyeCfg.Path = cfg.Models.EyeCascade
	eyeDet, err := opencv.NewCascade(detection.KindEye, eyeCfg)
	if err != nil {
		faceDet.Close()
		return fmt.Errorf("eye detector: %w", err)
	}
	faces := detection.NewFaceAdapter(faceDet, eyeDet, cfg.Faces, log.L())
	defer faces.Close()

	yoloCfg := opencv.DefaultYOLOConfig()
	yoloCfg.ModelPath = cfg.Models.YOLO
	objDet, err := opencv.NewYOLO(yoloCfg)
	if err != nil {
		return fmt.Errorf("object detector: %w", err)
	}
	objects := detection.NewObjectAdapter(objDet, cfg.Objects, log.L())
	defer objects.Close()

	analyzer := session.NewAnalyzer(faces, objects, gaze.NewEstimator(cfg.Gaze, faces),
		cfg.Session.Violation, cfg.Session.CountObjectPersons, log.L())
	snap := analyzer.Analyze(f)

	if annotate != "" {
		jpeg, err := opencv.NewRenderer().Encode(f, snap)
		if err != nil {
			return fmt.Errorf("annotate: %w", err)
		}
		if err := os.WriteFile(annotate, jpeg, 0o644); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Image      string             `json:"image"`
		Width      int                `json:"width"`
		Height     int                `json:"height"`
		Detections []detection.Record `json:"detections"`
		session.Snapshot
	}{
		Image:      path,
		Width:      f.Width,
		Height:     f.Height,
		Detections: snap.Detections(),
		Snapshot:   snap,
	})
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
