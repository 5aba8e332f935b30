package detection

import (
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/frame"
)

func TestFaceAdapter_LargestFirstAboveFloor(t *testing.T) {
	faces := NewMock(KindFace,
		Record{Confidence: 0.9, Box: Box{0, 0, 10, 10}},
		Record{Confidence: 0.9, Box: Box{20, 0, 50, 30}},
		Record{Confidence: 0.3, Box: Box{0, 0, 60, 48}}, // below person floor
	)
	a := NewFaceAdapter(faces, nil, DefaultFaceConfig(), log.Nop())

	obs, err := a.Detect(testFrame(1))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if obs.Count() != 2 {
		t.Fatalf("Expected 2 faces, got %d", obs.Count())
	}
	cand, ok := obs.Candidate()
	if !ok || cand.Box != (Box{20, 0, 50, 30}) {
		t.Errorf("Candidate = %+v, want the largest face", cand.Box)
	}
	if cand.Label != "face" {
		t.Errorf("Expected default label face, got %q", cand.Label)
	}
}

func TestFaceAdapter_DetectorError(t *testing.T) {
	a := NewFaceAdapter(NewFailingMock(KindFace), nil, DefaultFaceConfig(), log.Nop())

	obs, err := a.Detect(testFrame(1))
	var de *DetectorError
	if !errors.As(err, &de) || de.Kind != KindFace {
		t.Fatalf("Expected face DetectorError, got %v", err)
	}
	if obs.Count() != 0 {
		t.Error("Expected empty observation on error")
	}
}

func TestFaceAdapter_Placeholder(t *testing.T) {
	faces := NewMock(KindFace, Record{Confidence: 1, Box: Box{0, 0, 10, 10}})
	a := NewFaceAdapter(faces, nil, DefaultFaceConfig(), log.Nop())

	obs, err := a.Detect(frame.Blank(1, time.Now(), 64, 48))
	if err != nil || obs.Count() != 0 {
		t.Errorf("Expected no faces on placeholder, got %d (err=%v)", obs.Count(), err)
	}
}

func TestFaceAdapter_EyesTranslatedToFrame(t *testing.T) {
	var roiW, roiH int
	eyes := &Mock{
		Variant: KindEye,
		DetectFunc: func(f frame.Frame) ([]Record, error) {
			roiW, roiH = f.Width, f.Height
			return []Record{
				{Confidence: 1, Box: Box{2, 2, 6, 6}},
				{Confidence: 1, Box: Box{10, 2, 14, 6}},
			}, nil
		},
	}
	faces := NewMock(KindFace, Record{Confidence: 1, Box: Box{20, 10, 40, 30}})
	a := NewFaceAdapter(faces, eyes, DefaultFaceConfig(), log.Nop())

	f := testFrame(1)
	obs, _ := a.Detect(f)
	got, err := a.DetectEyes(f, &obs, 0)
	if err != nil {
		t.Fatalf("DetectEyes failed: %v", err)
	}
	if roiW != 20 || roiH != 20 {
		t.Errorf("Eye detector saw %dx%d, want the 20x20 face region", roiW, roiH)
	}
	want := []Box{{22, 12, 26, 16}, {30, 12, 34, 16}}
	if len(got) != len(want) {
		t.Fatalf("Expected %d eyes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("eye %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if len(obs.Eyes[0]) != 2 {
		t.Error("DetectEyes should record eyes on the observation")
	}
}

func TestFaceAdapter_EyesClippedRegion(t *testing.T) {
	eyes := NewMock(KindEye, Record{Confidence: 1, Box: Box{0, 0, 4, 4}})
	a := NewFaceAdapter(NewMock(KindFace), eyes, DefaultFaceConfig(), log.Nop())

	// Face box hangs off the left edge; the region starts at x=0.
	got, err := a.Eyes(testFrame(1), Box{-10, 5, 20, 25})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != (Box{0, 5, 4, 9}) {
		t.Errorf("Eyes = %+v, want [{0 5 4 9}]", got)
	}
}

func TestFaceAdapter_NoEyeDetector(t *testing.T) {
	a := NewFaceAdapter(NewMock(KindFace), nil, DefaultFaceConfig(), log.Nop())
	got, err := a.Eyes(testFrame(1), Box{0, 0, 10, 10})
	if err != nil || got != nil {
		t.Errorf("Expected no eyes and no error, got %v, %v", got, err)
	}
}
