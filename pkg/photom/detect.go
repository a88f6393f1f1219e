package photom

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/abworrall/cmdphot/pkg/emath"
)

// fwhm = 2*sqrt(2*ln(2)) * sigma
const gaussianFWHMToSigma = 0.42466090014400953

// The kernel footprint reaches out to this many sigmas.
const kernelSigmaRadius = 1.5

// A StarCandidate is a single detection in a single frame.
type StarCandidate struct {
	X, Y      float64 // centroid, pixels
	Peak      float64 // brightest background-subtracted pixel in the footprint
	Sharpness float64
}

func (sc StarCandidate) String() string {
	return fmt.Sprintf("star(%6.1f,%6.1f) peak=%.0f sharp=%.2f", sc.X, sc.Y, sc.Peak, sc.Sharpness)
}

// A Kernel is a truncated elliptical Gaussian (major axis along x),
// shifted and scaled to zero sum over its footprint, so that convolving
// with it estimates the amplitude of a star of that shape sitting on a
// flat background.
type Kernel struct {
	NX, NY int
	Values []float64 // row-major, NY rows of NX
	Mask   []bool    // the footprint
	NPix   int       // pixels inside the footprint
	RelErr float64   // noise in the convolved image, per unit of input noise
}

func NewKernel(fwhm, ratio float64) Kernel {
	xsigma := fwhm * gaussianFWHMToSigma
	ysigma := xsigma * ratio

	a := 1.0 / (2 * xsigma * xsigma)
	c := 1.0 / (2 * ysigma * ysigma)
	f := kernelSigmaRadius * kernelSigmaRadius / 2.0

	k := Kernel{
		NX: 2*int(math.Max(2, math.Sqrt(f/a))) + 1,
		NY: 2*int(math.Max(2, math.Sqrt(f/c))) + 1,
	}
	k.Values = make([]float64, k.NX*k.NY)
	k.Mask = make([]bool, k.NX*k.NY)

	gauss := make([]float64, k.NX*k.NY)
	inside := []float64{}
	for j := 0; j < k.NY; j++ {
		for i := 0; i < k.NX; i++ {
			dx := float64(i - k.NX/2)
			dy := float64(j - k.NY/2)
			r := a*dx*dx + c*dy*dy
			gauss[j*k.NX+i] = math.Exp(-r)
			if r <= f {
				k.Mask[j*k.NX+i] = true
				inside = append(inside, gauss[j*k.NX+i])
			}
		}
	}
	k.NPix = len(inside)

	sum := floats.Sum(inside)
	denom := floats.Dot(inside, inside) - sum*sum/float64(k.NPix)
	mean := sum / float64(k.NPix)
	for idx := range k.Values {
		if k.Mask[idx] {
			k.Values[idx] = (gauss[idx] - mean) / denom
		}
	}
	k.RelErr = 1.0 / math.Sqrt(denom)

	return k
}

// Convolve returns the grid convolved with the kernel, treating pixels
// off the edge as zero. The kernel is symmetric, so there is no need to
// flip it.
func (k Kernel) Convolve(fg emath.FloatGrid) emath.FloatGrid {
	out := fg.NewFromThis()
	w, h := fg.Dx(), fg.Dy()
	hx, hy := k.NX/2, k.NY/2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for j := 0; j < k.NY; j++ {
				sy := y + j - hy
				if sy < 0 || sy >= h {
					continue
				}
				for i := 0; i < k.NX; i++ {
					sx := x + i - hx
					if sx < 0 || sx >= w {
						continue
					}
					sum += k.Values[j*k.NX+i] * fg.Get(sx, sy)
				}
			}
			out.Set(x, y, sum)
		}
	}
	return out
}

// DetectParams configures the star finder.
type DetectParams struct {
	FWHM      float64
	Ratio     float64
	Threshold float64 // in units of the background std
	SharpLo   float64
	SharpHi   float64
	BorderPx  int
	PeakMax   float64
}

func (c Config) DetectParams() DetectParams {
	return DetectParams{
		FWHM:      c.FWHM,
		Ratio:     c.Ratio,
		Threshold: c.Threshold,
		SharpLo:   c.SharpLo,
		SharpHi:   c.SharpHi,
		BorderPx:  c.BorderPx,
		PeakMax:   c.PeakMax,
	}
}

type Detector struct {
	DetectParams
	Kernel Kernel
}

func NewDetector(p DetectParams) Detector {
	return Detector{DetectParams: p, Kernel: NewKernel(p.FWHM, p.Ratio)}
}

// Find locates the stars in one frame, given its clipped statistics.
// The result is sorted by Peak, brightest first.
func (d Detector) Find(fg emath.FloatGrid, st emath.ClippedStats) []StarCandidate {
	data := fg.AddConst(-st.Median)
	conv := d.Kernel.Convolve(data)
	thresh := d.Threshold * st.StdDev * d.Kernel.RelErr

	w, h := fg.Dx(), fg.Dy()
	stars := []StarCandidate{}

	for y := d.BorderPx; y < h-d.BorderPx; y++ {
		for x := d.BorderPx; x < w-d.BorderPx; x++ {
			cv := conv.Get(x, y)
			if !(cv > thresh) || !d.isLocalMax(conv, x, y) {
				continue
			}

			sc, ok := d.measure(data, cv, x, y)
			if !ok {
				continue
			}
			stars = append(stars, sc)
		}
	}

	sort.SliceStable(stars, func(i, j int) bool { return stars[i].Peak > stars[j].Peak })
	return stars
}

// isLocalMax reports whether (x,y) is the maximum of the convolved
// image over the kernel footprint. On a plateau only the first pixel in
// row-major order wins.
func (d Detector) isLocalMax(conv emath.FloatGrid, x, y int) bool {
	k := d.Kernel
	w, h := conv.Dx(), conv.Dy()
	v := conv.Get(x, y)
	for j := 0; j < k.NY; j++ {
		for i := 0; i < k.NX; i++ {
			if !k.Mask[j*k.NX+i] {
				continue
			}
			dx, dy := i-k.NX/2, j-k.NY/2
			if dx == 0 && dy == 0 {
				continue
			}
			sx, sy := x+dx, y+dy
			if sx < 0 || sx >= w || sy < 0 || sy >= h {
				continue
			}
			other := conv.Get(sx, sy)
			earlier := dy < 0 || (dy == 0 && dx < 0)
			if other > v || (earlier && other == v) {
				return false
			}
		}
	}
	return true
}

// measure computes peak, sharpness and centroid over the footprint
// around a convolution peak, and applies the peak and sharpness cuts.
func (d Detector) measure(data emath.FloatGrid, convPeak float64, x, y int) (StarCandidate, bool) {
	k := d.Kernel
	w, h := data.Dx(), data.Dy()

	dataPeak := data.Get(x, y)
	peak := math.Inf(-1)
	others := 0.0
	sumW, sumX, sumY := 0.0, 0.0, 0.0

	for j := 0; j < k.NY; j++ {
		for i := 0; i < k.NX; i++ {
			sx, sy := x+i-k.NX/2, y+j-k.NY/2
			v := 0.0
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				v = data.Get(sx, sy)
			}
			peak = math.Max(peak, v)

			if !k.Mask[j*k.NX+i] {
				continue
			}
			if sx != x || sy != y {
				others += v
			}
			if v > 0 {
				sumW += v
				sumX += v * float64(sx)
				sumY += v * float64(sy)
			}
		}
	}

	if peak > d.PeakMax {
		return StarCandidate{}, false
	}

	sharp := (dataPeak - others/float64(k.NPix-1)) / convPeak
	if sharp < d.SharpLo || sharp > d.SharpHi {
		return StarCandidate{}, false
	}

	sc := StarCandidate{X: float64(x), Y: float64(y), Peak: peak, Sharpness: sharp}
	if sumW > 0 {
		sc.X = sumX / sumW
		sc.Y = sumY / sumW
	}
	return sc, true
}

// FindAll runs the detector over each grid on a worker pool.
func (d Detector) FindAll(grids []emath.FloatGrid, stats []emath.ClippedStats, nWorkers int) [][]StarCandidate {
	out := make([][]StarCandidate, len(grids))
	runConcurrently(len(grids), nWorkers, func(i int) error {
		out[i] = d.Find(grids[i], stats[i])
		Log.Debug().Int("frame", i).Int("candidates", len(out[i])).Msg("detected")
		return nil
	})
	return out
}
