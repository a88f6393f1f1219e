package photom

import (
	"fmt"
	"math"

	"github.com/abworrall/cmdphot/pkg/emath"
)

// pixelWeight is the fraction of the pixel centred on (px,py) that
// falls inside the circle of radius r about (cx,cy). Pixels wholly
// inside or outside are exact; pixels on the boundary are estimated by
// testing the centres of an n x n grid of subpixels.
func pixelWeight(px, py, cx, cy, r float64, n int) float64 {
	dx := math.Abs(px - cx)
	dy := math.Abs(py - cy)

	// Farthest corner inside the circle: whole pixel is in
	fx, fy := dx+0.5, dy+0.5
	if fx*fx+fy*fy <= r*r {
		return 1
	}

	// Nearest point of the pixel outside the circle: whole pixel is out
	nx, ny := math.Max(0, dx-0.5), math.Max(0, dy-0.5)
	if nx*nx+ny*ny >= r*r {
		return 0
	}

	in := 0
	for j := 0; j < n; j++ {
		sy := py - 0.5 + (float64(j)+0.5)/float64(n) - cy
		for i := 0; i < n; i++ {
			sx := px - 0.5 + (float64(i)+0.5)/float64(n) - cx
			if sx*sx+sy*sy <= r*r {
				in++
			}
		}
	}
	return float64(in) / float64(n*n)
}

// ApertureSum adds up the grid values inside a circle of radius r
// centred on (cx,cy), weighting each pixel by how much of it lies in
// the circle. Pixel (x,y) covers [x-0.5,x+0.5] x [y-0.5,y+0.5].
func ApertureSum(fg emath.FloatGrid, cx, cy, r float64, subpixels int) float64 {
	x0 := int(math.Max(0, math.Floor(cx-r-0.5)))
	x1 := int(math.Min(float64(fg.Dx()-1), math.Ceil(cx+r+0.5)))
	y0 := int(math.Max(0, math.Floor(cy-r-0.5)))
	y1 := int(math.Min(float64(fg.Dy()-1), math.Ceil(cy+r+0.5)))

	sum := 0.0
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if w := pixelWeight(float64(x), float64(y), cx, cy, r, subpixels); w > 0 {
				sum += w * fg.Get(x, y)
			}
		}
	}
	return sum
}

// Photometry measures aperture sums with a fixed radius.
type Photometry struct {
	Radius    float64
	Subpixels int
}

func (c Config) Photometry() Photometry {
	return Photometry{Radius: c.RAperture * c.FWHM, Subpixels: c.Subpixels}
}

// Measure returns, for each grid and each star, the background
// subtracted aperture sum at the star's position in that grid. The
// background is the grid's clipped median.
func (ph Photometry) Measure(grids []emath.FloatGrid, stats []emath.ClippedStats, stars Stars) ([][]float64, error) {
	if len(stats) != len(grids) {
		return nil, fmt.Errorf("have stats for %d grids, want %d", len(stats), len(grids))
	}

	out := make([][]float64, len(grids))
	for i := range grids {
		data := grids[i].AddConst(-stats[i].Median)
		out[i] = make([]float64, len(stars))
		for j, s := range stars {
			if len(s.Positions) != len(grids) {
				return nil, fmt.Errorf("star %d has %d positions, want %d", s.Index, len(s.Positions), len(grids))
			}
			p := s.Positions[i]
			out[i][j] = ApertureSum(data, p.X, p.Y, ph.Radius, ph.Subpixels)
		}
	}
	return out, nil
}
