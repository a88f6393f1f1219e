package fft

import (
	"fmt"
	"image"
	"math"

	"github.com/abworrall/cmdphot/pkg/emath"
)

// A Correlator holds the spectrum of a reference grid, and finds where
// other grids of the same size best line up with it. The surface it
// searches is the full linear convolution of the reference with the
// other grid reversed along both axes, i.e. their cross-correlation,
// of size (2w-1)x(2h-1).
//
// The reference spectrum is read-only after construction, so one
// Correlator can be shared; each goroutine should call Peak with its
// own Plan (see NewPlan).
type Correlator struct {
	w, h   int
	pw, ph int
	refFT  []complex128
}

func NewCorrelator(ref emath.FloatGrid) *Correlator {
	c := &Correlator{
		w:  ref.Dx(),
		h:  ref.Dy(),
		pw: NextPow2(2*ref.Dx() - 1),
		ph: NextPow2(2*ref.Dy() - 1),
	}
	c.refFT = c.pad(ref, false)
	c.NewPlan().Forward(c.refFT)
	return c
}

// NewPlan returns a plan sized for this correlator's padded grids.
func (c *Correlator) NewPlan() *Plan { return NewPlan(c.pw, c.ph) }

// pad copies the grid into the top-left corner of a zeroed padded
// buffer, optionally reversing it on both axes.
func (c *Correlator) pad(fg emath.FloatGrid, reversed bool) []complex128 {
	buf := make([]complex128, c.pw*c.ph)
	for y := 0; y < c.h; y++ {
		for x := 0; x < c.w; x++ {
			v := fg.Get(x, y)
			if reversed {
				v = fg.Get(c.w-1-x, c.h-1-y)
			}
			buf[y*c.pw+x] = complex(v, 0)
		}
	}
	return buf
}

// Peak returns the location of the maximum of the correlation surface
// between the reference and `fg`. Values are rounded to the nearest
// integer before comparing, since for binary inputs they are integer
// counts and FFT noise should not pick the winner; ties go to the first
// maximum in row-major order.
func (c *Correlator) Peak(plan *Plan, fg emath.FloatGrid) (image.Point, error) {
	if fg.Dx() != c.w || fg.Dy() != c.h {
		return image.Point{}, fmt.Errorf("correlate %dx%d grid against %dx%d reference", fg.Dx(), fg.Dy(), c.w, c.h)
	}
	if plan.Dx() != c.pw || plan.Dy() != c.ph {
		return image.Point{}, fmt.Errorf("plan is %dx%d, want %dx%d", plan.Dx(), plan.Dy(), c.pw, c.ph)
	}

	ft := c.correlate(plan, fg)

	best := image.Point{}
	bestVal := math.Inf(-1)
	for y := 0; y < 2*c.h-1; y++ {
		for x := 0; x < 2*c.w-1; x++ {
			v := math.Round(real(ft[y*c.pw+x]))
			if v > bestVal {
				bestVal = v
				best = image.Point{x, y}
			}
		}
	}

	return best, nil
}

// Surface returns the whole rounded correlation surface as a grid,
// for debug dumps.
func (c *Correlator) Surface(plan *Plan, fg emath.FloatGrid) emath.FloatGrid {
	ft := c.correlate(plan, fg)

	out := emath.NewFloatGrid(2*c.w-1, 2*c.h-1)
	for y := 0; y < out.Dy(); y++ {
		for x := 0; x < out.Dx(); x++ {
			out.Set(x, y, math.Round(real(ft[y*c.pw+x])))
		}
	}
	return out
}

func (c *Correlator) correlate(plan *Plan, fg emath.FloatGrid) []complex128 {
	ft := c.pad(fg, true)
	plan.Forward(ft)
	for i := range ft {
		ft[i] *= c.refFT[i]
	}
	plan.Inverse(ft)
	return ft
}
