// Package metrics exposes session counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teslashibe/go-proctor/pkg/frame"
	"github.com/teslashibe/go-proctor/pkg/remote"
	"github.com/teslashibe/go-proctor/pkg/session"
)

// Metrics holds all monitoring metrics.
type Metrics struct {
	// Frame counters
	FramesProcessed   atomic.Uint64
	PlaceholderFrames atomic.Uint64
	ViolationFrames   atomic.Uint64
	MovementFrames    atomic.Uint64

	// Latest frame state
	RiskScore   atomic.Int64
	PersonCount atomic.Int64
	FacePresent atomic.Int64 // 0 = missing, 1 = present
	FrameAgeMs  atomic.Int64

	// Sync
	SyncDropped atomic.Uint64

	violations *prometheus.CounterVec
	syncCalls  *prometheus.CounterVec
	commands   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_frames_processed_total",
			Help: "Total frames processed by the session loop",
		},
		func() float64 { return float64(m.FramesProcessed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_placeholder_frames_total",
			Help: "Total placeholder frames served while the camera reconnected",
		},
		func() float64 { return float64(m.PlaceholderFrames.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_violation_frames_total",
			Help: "Total frames with at least one violation",
		},
		func() float64 { return float64(m.ViolationFrames.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_movement_frames_total",
			Help: "Total frames that raised the movement alert",
		},
		func() float64 { return float64(m.MovementFrames.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_risk_score",
			Help: "Risk score of the latest frame (0-100)",
		},
		func() float64 { return float64(m.RiskScore.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_person_count",
			Help: "Persons in the latest frame",
		},
		func() float64 { return float64(m.PersonCount.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_face_present",
			Help: "Face present in the latest frame (0=missing, 1=present)",
		},
		func() float64 { return float64(m.FacePresent.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_frame_age_ms",
			Help: "Delay between capture and processing of the latest frame",
		},
		func() float64 { return float64(m.FrameAgeMs.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "proctor_sync_dropped_total",
			Help: "Sync calls dropped before reaching the store",
		},
		func() float64 { return float64(m.SyncDropped.Load()) },
	))

	m.violations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proctor_violations_total",
		Help: "Violation events by kind",
	}, []string{"kind"})
	m.syncCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proctor_sync_calls_total",
		Help: "Remote store calls by operation and outcome",
	}, []string{"op", "outcome"})
	m.commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proctor_commands_total",
		Help: "Session commands by kind",
	}, []string{"kind"})

	m.registry.MustRegister(m.violations, m.syncCalls, m.commands)
}

// Observe records one processed frame. It satisfies session.Observer.
func (m *Metrics) Observe(f frame.Frame, snap session.Snapshot) {
	m.FramesProcessed.Add(1)
	if snap.Placeholder {
		m.PlaceholderFrames.Add(1)
	}
	if !snap.Empty() {
		m.ViolationFrames.Add(1)
	}
	if snap.MovementAlert {
		m.MovementFrames.Add(1)
	}
	for _, e := range snap.Events {
		m.violations.WithLabelValues(string(e.Kind)).Inc()
	}
	m.commands.WithLabelValues(snap.Command.Kind.String()).Inc()

	m.RiskScore.Store(int64(snap.Risk))
	m.PersonCount.Store(int64(snap.PersonCount))
	if snap.Face.Present {
		m.FacePresent.Store(1)
	} else {
		m.FacePresent.Store(0)
	}
	if !f.CapturedAt.IsZero() {
		m.FrameAgeMs.Store(time.Since(f.CapturedAt).Milliseconds())
	}
}

// SyncResult records the outcome of a remote store call. Its signature
// matches remote.Gateway.OnResult.
func (m *Metrics) SyncResult(op string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, remote.ErrQueueFull), errors.Is(err, remote.ErrClosed):
		outcome = "dropped"
		m.SyncDropped.Add(1)
	case err != nil:
		outcome = "error"
	}
	m.syncCalls.WithLabelValues(op, outcome).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
