package violation

import (
	"math"
	"reflect"
	"testing"

	"github.com/teslashibe/go-proctor/pkg/detection"
	"github.com/teslashibe/go-proctor/pkg/gaze"
)

func centeredFace() gaze.FaceState {
	return gaze.FaceState{
		Present:   true,
		Boxes:     []detection.Box{{X1: 300, Y1: 200, X2: 340, Y2: 240}},
		Gaze:      gaze.Forward,
		EyeStatus: gaze.EyesOK,
	}
}

func phone(conf float64) detection.Record {
	return detection.Record{Label: "cell phone", Confidence: conf, Box: detection.Box{X1: 10, Y1: 10, X2: 40, Y2: 60}}
}

func TestAggregate_Scenarios(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name      string
		face      gaze.FaceState
		persons   int
		objects   []detection.Record
		wantKinds []Kind
		wantRisk  int
		wantBand  Band
	}{
		{
			name:     "clean frame",
			face:     centeredFace(),
			persons:  1,
			wantRisk: 0,
			wantBand: BandNormal,
		},
		{
			name:      "one phone",
			face:      centeredFace(),
			persons:   1,
			objects:   []detection.Record{phone(0.5)},
			wantKinds: []Kind{ProhibitedObject},
			wantRisk:  80,
			wantBand:  BandCritical,
		},
		{
			name:      "no person",
			face:      gaze.Absent(),
			persons:   0,
			wantKinds: []Kind{NoPerson},
			wantRisk:  100,
			wantBand:  BandCritical,
		},
		{
			name:      "two persons",
			face:      centeredFace(),
			persons:   2,
			wantKinds: []Kind{MultiplePersons},
			wantRisk:  90,
			wantBand:  BandCritical,
		},
		{
			name:      "looking left",
			face:      gaze.FaceState{Present: true, Gaze: gaze.Left, EyeStatus: gaze.EyesOK},
			persons:   1,
			wantKinds: []Kind{GazeShift},
			wantRisk:  20,
			wantBand:  BandNormal,
		},
		{
			name:      "eyes hidden",
			face:      gaze.FaceState{Present: true, Gaze: gaze.Away, EyeStatus: gaze.EyesNotVisible},
			persons:   1,
			wantKinds: []Kind{GazeShift, EyesNotVisible},
			wantRisk:  30,
			wantBand:  BandNormal,
		},
		{
			name:      "partial eyes is not a violation",
			face:      gaze.FaceState{Present: true, Gaze: gaze.Forward, EyeStatus: gaze.EyesPartial},
			persons:   1,
			wantRisk:  0,
			wantBand:  BandNormal,
		},
		{
			name:      "book and gaze",
			face:      gaze.FaceState{Present: true, Gaze: gaze.Right, EyeStatus: gaze.EyesOK},
			persons:   1,
			objects:   []detection.Record{{Label: "book", Confidence: 0.4}},
			wantKinds: []Kind{ProhibitedObject, GazeShift},
			wantRisk:  70,
			wantBand:  BandWarning,
		},
		{
			name:      "unknown label uses default weight",
			face:      centeredFace(),
			persons:   1,
			objects:   []detection.Record{{Label: "smartwatch", Confidence: 0.9}},
			wantKinds: []Kind{ProhibitedObject},
			wantRisk:  50,
			wantBand:  BandWarning,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := Aggregate(cfg, tc.face, tc.persons, tc.objects)
			if got := a.Kinds(); len(got) != len(tc.wantKinds) || (len(got) > 0 && !reflect.DeepEqual(got, tc.wantKinds)) {
				t.Errorf("kinds = %v, want %v", got, tc.wantKinds)
			}
			if a.Risk != tc.wantRisk {
				t.Errorf("risk = %d, want %d", a.Risk, tc.wantRisk)
			}
			if a.Band != tc.wantBand {
				t.Errorf("band = %s, want %s", a.Band, tc.wantBand)
			}
		})
	}
}

func TestAggregate_ClampWithManyViolations(t *testing.T) {
	cfg := DefaultConfig()
	var objects []detection.Record
	for i := 0; i < 20; i++ {
		objects = append(objects, phone(0.9))
	}
	face := gaze.FaceState{Present: true, Gaze: gaze.Away, EyeStatus: gaze.EyesNotVisible}

	for persons := 0; persons < 5; persons++ {
		a := Aggregate(cfg, face, persons, objects)
		if a.Risk < 0 || a.Risk > MaxRisk {
			t.Errorf("persons=%d: risk %d out of [0, %d]", persons, a.Risk, MaxRisk)
		}
	}
}

func TestAggregate_HugeWeightsSaturate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LabelWeights["cell phone"] = math.MaxInt

	tests := []struct {
		name    string
		objects []detection.Record
	}{
		{"one phone", []detection.Record{phone(0.9)}},
		{"two phones", []detection.Record{phone(0.9), phone(0.8)}},
		{"three phones", []detection.Record{phone(0.9), phone(0.8), phone(0.7)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := Aggregate(cfg, centeredFace(), 1, tc.objects)
			if len(a.Events) != len(tc.objects) {
				t.Fatalf("events = %d, want %d", len(a.Events), len(tc.objects))
			}
			if a.Risk != MaxRisk || a.Band != BandCritical {
				t.Errorf("risk = %d band = %s, want %d critical", a.Risk, a.Band, MaxRisk)
			}
		})
	}
}

func TestAggregate_MoreViolationsNeverLowerRisk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LabelWeights["cell phone"] = MaxRisk

	var objects []detection.Record
	prev := Aggregate(cfg, centeredFace(), 1, nil)
	for i := 0; i < 10; i++ {
		objects = append(objects, phone(0.9))
		a := Aggregate(cfg, centeredFace(), 1, objects)
		if a.Risk < prev.Risk || a.Band.Rank() < prev.Band.Rank() {
			t.Fatalf("%d phones: risk %d (%s) below %d (%s)", i+1, a.Risk, a.Band, prev.Risk, prev.Band)
		}
		prev = a
	}
}

func TestAggregate_PersonCountExclusive(t *testing.T) {
	cfg := DefaultConfig()
	for persons := 0; persons < 6; persons++ {
		a := Aggregate(cfg, centeredFace(), persons, nil)
		switch {
		case persons == 0:
			if !a.Has(NoPerson) || a.Has(MultiplePersons) {
				t.Errorf("persons=0: got %v", a.Kinds())
			}
		case persons > 1:
			if !a.Has(MultiplePersons) || a.Has(NoPerson) {
				t.Errorf("persons=%d: got %v", persons, a.Kinds())
			}
		default:
			if a.Has(MultiplePersons) || a.Has(NoPerson) {
				t.Errorf("persons=1: got %v", a.Kinds())
			}
		}
	}
}

func TestAggregate_Pure(t *testing.T) {
	cfg := DefaultConfig()
	face := gaze.FaceState{Present: true, Gaze: gaze.Left, EyeStatus: gaze.EyesOK}
	objects := []detection.Record{phone(0.6), {Label: "book", Confidence: 0.5}}

	first := Aggregate(cfg, face, 2, objects)
	for i := 0; i < 10; i++ {
		if again := Aggregate(cfg, face, 2, objects); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestBand_Monotonic(t *testing.T) {
	cfg := DefaultConfig()
	prev := cfg.Band(0)
	for score := 0; score <= MaxRisk; score++ {
		b := cfg.Band(score)
		if b.Rank() < prev.Rank() {
			t.Fatalf("band dropped from %s to %s at score %d", prev, b, score)
		}
		prev = b
	}
	if cfg.Band(30) != BandNormal || cfg.Band(31) != BandWarning || cfg.Band(71) != BandCritical {
		t.Error("unexpected cut points")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{340, 100},
	}
	for _, tc := range tests {
		if got := Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSummary(t *testing.T) {
	a := Aggregate(DefaultConfig(), gaze.Absent(), 0, []detection.Record{phone(0.5)})
	want := "No person detected | Prohibited object: cell phone (0.50)"
	if got := a.Summary(); got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config invalid: %v", errs)
	}
	cfg.WarningAbove = 80
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Error("expected inverted cut points to be rejected")
	}
	cfg = DefaultConfig()
	cfg.LabelWeights["book"] = -1
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Error("expected negative label weight to be rejected")
	}
	cfg = DefaultConfig()
	cfg.LabelWeights["cell phone"] = math.MaxInt
	if errs := cfg.Validate(); len(errs) != 1 {
		t.Errorf("expected oversized label weight to be rejected, got %v", errs)
	}
	cfg = DefaultConfig()
	cfg.MultiplePersonsWeight = MaxRisk + 1
	if errs := cfg.Validate(); len(errs) != 1 {
		t.Errorf("expected oversized multiple persons weight to be rejected, got %v", errs)
	}
}
