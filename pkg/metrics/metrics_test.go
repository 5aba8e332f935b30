package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-proctor/pkg/frame"
	"github.com/teslashibe/go-proctor/pkg/gaze"
	"github.com/teslashibe/go-proctor/pkg/remote"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/violation"
)

// counterValue sums a gathered metric across the given label value.
func counterValue(t *testing.T, m *Metrics, name, label, value string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					sum += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return sum
}

func TestObserve(t *testing.T) {
	m := New()
	f := frame.New(1, time.Now(), 4, 4, make([]byte, 4*4*frame.Channels))

	m.Observe(f, session.Snapshot{
		PersonCount:   1,
		Face:          gaze.FaceState{Present: true, Gaze: gaze.Forward},
		MovementAlert: true,
		Command:       session.Command{Kind: session.Continue},
	})
	m.Observe(f, session.Snapshot{
		Placeholder: true,
		Assessment: violation.Assessment{
			Events: []violation.Event{{Kind: violation.NoPerson, Weight: 100}},
			Risk:   100,
			Band:   violation.BandCritical,
		},
		Command: session.Command{Kind: session.Continue},
	})

	if got := m.MovementFrames.Load(); got != 1 {
		t.Errorf("MovementFrames = %d, want 1", got)
	}
	if got := m.FramesProcessed.Load(); got != 2 {
		t.Errorf("FramesProcessed = %d, want 2", got)
	}
	if got := m.PlaceholderFrames.Load(); got != 1 {
		t.Errorf("PlaceholderFrames = %d, want 1", got)
	}
	if got := m.ViolationFrames.Load(); got != 1 {
		t.Errorf("ViolationFrames = %d, want 1", got)
	}
	if m.RiskScore.Load() != 100 || m.FacePresent.Load() != 0 || m.PersonCount.Load() != 0 {
		t.Error("gauges should reflect the latest frame")
	}
	if got := counterValue(t, m, "proctor_violations_total", "kind", "NO_PERSON"); got != 1 {
		t.Errorf("NO_PERSON counter = %v, want 1", got)
	}
	if got := counterValue(t, m, "proctor_commands_total", "kind", "CONTINUE"); got != 2 {
		t.Errorf("CONTINUE counter = %v, want 2", got)
	}
}

func TestSyncResult(t *testing.T) {
	m := New()
	m.SyncResult(remote.OpHeartbeat, nil)
	m.SyncResult(remote.OpHeartbeat, errors.New("timeout"))
	m.SyncResult(remote.OpViolation, remote.ErrQueueFull)

	tests := []struct {
		outcome string
		want    float64
	}{
		{"ok", 1},
		{"error", 1},
		{"dropped", 1},
	}
	for _, tc := range tests {
		if got := counterValue(t, m, "proctor_sync_calls_total", "outcome", tc.outcome); got != tc.want {
			t.Errorf("outcome %s = %v, want %v", tc.outcome, got, tc.want)
		}
	}
	if m.SyncDropped.Load() != 1 {
		t.Errorf("SyncDropped = %d, want 1", m.SyncDropped.Load())
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SyncResult(remote.OpHeartbeat, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"proctor_frames_processed_total", "proctor_risk_score", "proctor_sync_calls_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
