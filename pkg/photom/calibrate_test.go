package photom

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abworrall/cmdphot/pkg/emath"
)

func TestDarkCorrect(t *testing.T) {
	lights := []emath.FloatGrid{constGrid(4, 4, 110), constGrid(4, 4, 120)}
	darks := []emath.FloatGrid{constGrid(4, 4, 9), constGrid(4, 4, 10), constGrid(4, 4, 500)}

	got, err := DarkCorrect(lights, darks)
	if err != nil {
		t.Fatalf("DarkCorrect: %v", err)
	}
	if got[0].Get(1, 1) != 100 || got[1].Get(2, 3) != 110 {
		t.Errorf("got %s / %s, want 100 / 110 (median dark of 10)", got[0].Stats(), got[1].Stats())
	}
	if lights[0].Get(0, 0) != 110 {
		t.Errorf("DarkCorrect modified its input")
	}
}

func TestFlatCorrect_NormalisesByMedian(t *testing.T) {
	flat := constGrid(4, 4, 2000)
	flat.Set(0, 0, 1000) // a dusty corner
	lights := []emath.FloatGrid{constGrid(4, 4, 50)}

	got, err := FlatCorrect(lights, []emath.FloatGrid{flat})
	if err != nil {
		t.Fatalf("FlatCorrect: %v", err)
	}
	if got[0].Get(2, 2) != 50 {
		t.Errorf("unvignetted pixel = %f, want 50", got[0].Get(2, 2))
	}
	if got[0].Get(0, 0) != 100 {
		t.Errorf("corner pixel = %f, want 100", got[0].Get(0, 0))
	}
}

func TestFlatCorrect_ZeroMedian(t *testing.T) {
	_, err := FlatCorrect([]emath.FloatGrid{constGrid(2, 2, 1)}, []emath.FloatGrid{constGrid(2, 2, 0)})
	if err == nil {
		t.Errorf("expected an error for an all-zero flat")
	}
}

func TestCalibrateLights_MissingInputsWarn(t *testing.T) {
	dir := t.TempDir()
	short := FrameSet{Band: "B", Frames: []Frame{{FloatGrid: constGrid(4, 4, 100)}}}
	long := FrameSet{Band: "V", Frames: []Frame{{FloatGrid: constGrid(4, 4, 200)}}}

	cfg := NewConfig()
	cfg.DoDark = true
	cfg.DoFlat = true
	cfg.DoDarkFlat = true
	cfg.PathDarkShort = filepath.Join(dir, "nope")
	cfg.PathDarkLong = filepath.Join(dir, "nope")
	cfg.PathFlatShort = filepath.Join(dir, "nope")
	cfg.PathFlatLong = filepath.Join(dir, "nope")
	cfg.PathDarkFlat = filepath.Join(dir, "nope")

	gotShort, gotLong, warnings, err := CalibrateLights(cfg, short, long)
	if err != nil {
		t.Fatalf("CalibrateLights: %v", err)
	}
	if len(warnings) != 5 {
		t.Errorf("got %d warnings, want 5: %v", len(warnings), warnings)
	}
	for _, w := range warnings {
		if !strings.Contains(w.Message, "could not find files") {
			t.Errorf("unexpected warning %q", w)
		}
	}
	if gotShort.Frames[0].Get(0, 0) != 100 || gotLong.Frames[0].Get(0, 0) != 200 {
		t.Errorf("frames changed despite skipped calibration")
	}
}

func TestCalibrateLights_DarkAndFlat(t *testing.T) {
	dir := t.TempDir()
	darkDir := writeFITSFrames(t, dir, "darks", constGrid(8, 8, 10), constGrid(8, 8, 10))
	flat := constGrid(8, 8, 1000)
	flat.Set(0, 0, 500)
	flatDir := writeFITSFrames(t, dir, "flats", flat)

	short := FrameSet{Band: "B", Frames: []Frame{{FloatGrid: constGrid(8, 8, 110)}}}
	long := FrameSet{Band: "V", Frames: []Frame{{FloatGrid: constGrid(8, 8, 210)}}}

	cfg := NewConfig()
	cfg.DoDark = true
	cfg.DoFlat = true
	cfg.PathDarkShort = darkDir
	cfg.PathDarkLong = darkDir
	cfg.PathFlatShort = flatDir
	cfg.PathFlatLong = flatDir

	gotShort, gotLong, warnings, err := CalibrateLights(cfg, short, long)
	if err != nil {
		t.Fatalf("CalibrateLights: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if v := gotShort.Frames[0].Get(3, 3); math.Abs(v-100) > 1e-9 {
		t.Errorf("short pixel = %f, want 100", v)
	}
	if v := gotLong.Frames[0].Get(0, 0); math.Abs(v-400) > 1e-9 {
		t.Errorf("long corner pixel = %f, want 400", v)
	}
}
