package photom

import (
	"testing"

	"github.com/abworrall/cmdphot/pkg/emath"
)

var registerSky = synthSky{
	W: 64, H: 64, Background: 100, Noise: 5, FWHM: 3,
	Stars: []synthStar{
		{20, 18, 1000},
		{41, 25, 800},
		{30, 44, 1200},
		{47, 49, 900},
	},
}

func TestOffsets_RecoversShifts(t *testing.T) {
	shifts := []Offset{{0, 0}, {3, -2}, {-1, 4}}
	grids := []emath.FloatGrid{}
	for i, s := range shifts {
		grids = append(grids, registerSky.frame(int64(i+1), s.DX, s.DY))
	}

	reg := Registration{Ref: 0, Workers: 2, Name: "test"}
	got, warnings, err := reg.Offsets(grids, FrameStats(grids, 2))
	if err != nil {
		t.Fatalf("Offsets: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	for i := range shifts {
		if got[i] != shifts[i] {
			t.Errorf("frame %d: got offset %s, want %s", i, got[i], shifts[i])
		}
	}
}

func TestOffsets_FollowContent(t *testing.T) {
	brightest := func(g emath.FloatGrid) (int, int) {
		bx, by := 0, 0
		for y := 0; y < g.Dy(); y++ {
			for x := 0; x < g.Dx(); x++ {
				if g.Get(x, y) > g.Get(bx, by) {
					bx, by = x, y
				}
			}
		}
		return bx, by
	}

	grids := []emath.FloatGrid{registerSky.frame(1, 0, 0), registerSky.frame(2, 4, -3)}
	reg := Registration{Ref: 0, Workers: 1, Name: "test"}
	got, _, err := reg.Offsets(grids, FrameStats(grids, 1))
	if err != nil {
		t.Fatalf("Offsets: %v", err)
	}

	x0, y0 := brightest(grids[0])
	x1, y1 := brightest(grids[1])
	if want := (Offset{x1 - x0, y1 - y0}); got[1] != want {
		t.Errorf("offset = %s, want the star's move %s", got[1], want)
	}

	aligned, err := Align(grids, got)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if x, y := brightest(aligned[1]); x != x0 || y != y0 {
		t.Errorf("aligned star at (%d,%d), want (%d,%d)", x, y, x0, y0)
	}
}

func TestOffsets_OtherReference(t *testing.T) {
	grids := []emath.FloatGrid{
		registerSky.frame(1, 0, 0),
		registerSky.frame(2, 2, 1),
	}

	reg := Registration{Ref: 1, Workers: 1, Name: "test"}
	got, _, err := reg.Offsets(grids, FrameStats(grids, 1))
	if err != nil {
		t.Fatalf("Offsets: %v", err)
	}
	if want := (Offset{-2, -1}); got[0] != want {
		t.Errorf("got %s, want %s", got[0], want)
	}
	if got[1] != (Offset{}) {
		t.Errorf("reference offset = %s, want (0,0)", got[1])
	}
}

func TestOffsets_BadReference(t *testing.T) {
	grids := []emath.FloatGrid{registerSky.frame(1, 0, 0)}
	reg := Registration{Ref: 3}
	if _, _, err := reg.Offsets(grids, FrameStats(grids, 1)); err == nil {
		t.Errorf("expected an error for an out of range reference")
	}
}

func TestAlign(t *testing.T) {
	ref := constGrid(8, 8, 0)
	ref.Set(2, 3, 7)

	moved := ref.Shift(2, 1)
	aligned, err := Align([]emath.FloatGrid{ref, moved}, []Offset{{}, {2, 1}})
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if aligned[1].Get(2, 3) != 7 {
		t.Errorf("aligned frame: pixel (2,3) = %f, want 7", aligned[1].Get(2, 3))
	}

	if _, err := Align([]emath.FloatGrid{ref}, nil); err == nil {
		t.Errorf("expected an error for mismatched offsets")
	}
}

func TestRegisterAndAlign(t *testing.T) {
	grids := []emath.FloatGrid{registerSky.frame(1, 0, 0), registerSky.frame(2, 3, -2)}

	reg := Registration{Workers: 2, Name: "test"}
	aligned, offsets, _, err := reg.RegisterAndAlign(grids)
	if err != nil {
		t.Fatalf("RegisterAndAlign: %v", err)
	}
	if offsets[1] != (Offset{3, -2}) {
		t.Fatalf("offset = %s, want (+3,-2)", offsets[1])
	}

	// The star at (30,44) is back where it is in the reference
	if v := aligned[1].Get(30, 44); v < 1000 {
		t.Errorf("aligned star pixel = %f, want > 1000", v)
	}
}

func TestRegisterAndAlign_SingleFrame(t *testing.T) {
	grids := []emath.FloatGrid{registerSky.frame(1, 0, 0)}

	aligned, offsets, _, err := Registration{}.RegisterAndAlign(grids)
	if err != nil {
		t.Fatalf("RegisterAndAlign: %v", err)
	}
	if len(offsets) != 1 || offsets[0] != (Offset{}) {
		t.Errorf("offsets = %v, want [(0,0)]", offsets)
	}
	if aligned[0].Get(20, 18) != grids[0].Get(20, 18) {
		t.Errorf("single frame was modified")
	}

	if _, _, _, err := (Registration{}).RegisterAndAlign(nil); err != ErrNoFrames {
		t.Errorf("no frames: got %v, want ErrNoFrames", err)
	}
}
