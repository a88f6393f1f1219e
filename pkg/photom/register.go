package photom

import (
	"fmt"

	"github.com/abworrall/cmdphot/pkg/emath"
	"github.com/abworrall/cmdphot/pkg/fft"
)

// Pixels brighter than median + BinarizeSigma*std count as "star" when
// registering frames.
const BinarizeSigma = 16.0

// An Offset is how far a frame's content sits from where it sits in the
// reference frame, in whole pixels. The reference's own offset is (0,0).
//
// The sign follows the content: a star at (x,y) in the reference is
// at (x+DX, y+DY) in the frame. That makes it the reference's
// correlation peak minus the frame's, and Align moves the frame by
// (-DX,-DY) to line it up.
type Offset struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

func (o Offset) String() string { return fmt.Sprintf("(%+d,%+d)", o.DX, o.DY) }

// FrameStats computes the sigma-clipped statistics of each grid.
func FrameStats(grids []emath.FloatGrid, nWorkers int) []emath.ClippedStats {
	out := make([]emath.ClippedStats, len(grids))
	runConcurrently(len(grids), nWorkers, func(i int) error {
		out[i] = grids[i].ClippedStats()
		return nil
	})
	return out
}

// Registration finds the integer offset of every grid relative to the
// grid at index Ref, by cross-correlating binarized copies of them.
type Registration struct {
	Ref     int
	Workers int
	Name    string // used in log lines and warnings
	Debug   bool   // dump the correlation surfaces as PNGs
}

func (reg Registration) Offsets(grids []emath.FloatGrid, stats []emath.ClippedStats) ([]Offset, []Warning, error) {
	if err := CheckShapes(grids...); err != nil {
		return nil, nil, err
	}
	if len(stats) != len(grids) {
		return nil, nil, fmt.Errorf("have stats for %d grids, want %d", len(stats), len(grids))
	}
	if reg.Ref < 0 || reg.Ref >= len(grids) {
		return nil, nil, fmt.Errorf("reference index %d out of range [0,%d)", reg.Ref, len(grids))
	}

	binary := make([]emath.FloatGrid, len(grids))
	runConcurrently(len(grids), reg.Workers, func(i int) error {
		binary[i] = grids[i].Binarize(stats[i].Median + BinarizeSigma*stats[i].StdDev)
		return nil
	})

	corr := fft.NewCorrelator(binary[reg.Ref])
	peaks := make([]Offset, len(grids))
	err := runConcurrently(len(grids), reg.Workers, func(i int) error {
		p, err := corr.Peak(corr.NewPlan(), binary[i])
		if err != nil {
			return fmt.Errorf("correlate grid %d: %w", i, err)
		}
		peaks[i] = Offset{p.X, p.Y}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	warnings := []Warning{}
	w, h := grids[0].Dx(), grids[0].Dy()
	offsets := make([]Offset, len(grids))
	for i := range grids {
		offsets[i] = Offset{
			DX: peaks[reg.Ref].DX - peaks[i].DX,
			DY: peaks[reg.Ref].DY - peaks[i].DY,
		}
		if abs(offsets[i].DX) > w/2 || abs(offsets[i].DY) > h/2 {
			msg := fmt.Sprintf("frame %d offset %s exceeds half the frame size; check the frame", i, offsets[i])
			Log.Warn().Str("stage", "register").Str("pass", reg.Name).Msg(msg)
			warnings = append(warnings, Warning{Stage: "register " + reg.Name, Message: msg})
		}
		Log.Debug().Str("pass", reg.Name).Int("frame", i).Str("offset", offsets[i].String()).Msg("registered")
	}

	if reg.Debug {
		dumpCorrelation(reg.Name, corr, binary)
	}

	return offsets, warnings, nil
}

// Align moves each grid's content back onto the reference, by shifting
// it by the negated offset. Uncovered pixels are zero.
func Align(grids []emath.FloatGrid, offsets []Offset) ([]emath.FloatGrid, error) {
	if len(grids) != len(offsets) {
		return nil, fmt.Errorf("have %d offsets for %d grids", len(offsets), len(grids))
	}
	out := make([]emath.FloatGrid, len(grids))
	for i := range grids {
		out[i] = grids[i].Shift(-offsets[i].DX, -offsets[i].DY)
	}
	return out, nil
}

// RegisterAndAlign is Offsets followed by Align. A single grid is its
// own reference, and is returned untouched with offset (0,0).
func (reg Registration) RegisterAndAlign(grids []emath.FloatGrid) ([]emath.FloatGrid, []Offset, []Warning, error) {
	if len(grids) == 0 {
		return nil, nil, nil, ErrNoFrames
	}
	if len(grids) == 1 {
		return []emath.FloatGrid{grids[0].Copy()}, []Offset{{}}, nil, nil
	}

	offsets, warnings, err := reg.Offsets(grids, FrameStats(grids, reg.Workers))
	if err != nil {
		return nil, nil, warnings, err
	}
	aligned, err := Align(grids, offsets)
	return aligned, offsets, warnings, err
}

func dumpCorrelation(name string, corr *fft.Correlator, binary []emath.FloatGrid) {
	plan := corr.NewPlan()
	for i := range binary {
		surf := corr.Surface(plan, binary[i])
		filename := fmt.Sprintf("debug-xcorr-%s-%03d.png", name, i)
		if err := surf.ToImg(fmt.Sprintf("%s frame %d", name, i), filename); err != nil {
			Log.Debug().Err(err).Str("file", filename).Msg("could not write debug image")
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
