package emath

import "math"

// Some functions that only operate on basic types, that are useful

// https://www.sjbrown.co.uk/posts/gamma-correct-rendering/ - "linear RGB to sRGB"
// `f` is assumed to be in the range [0,1]
func GammaExpand_F64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055*math.Pow(f, 1.0/2.4) - 0.055
}

const (
	DefaultHistLogScaling = 1000.0
	DefaultHistLogBits    = 16
)

// HistLog is a log display stretch for an n-bit detector: 0 maps to 0,
// full scale (2^nBits - 1) maps to full scale, and faint values are
// lifted by roughly `scaling`.
func HistLog(v, scaling float64, nBits int) float64 {
	a := math.Pow(2, float64(nBits)) - 1
	return a * math.Log10(math.Max(1e-100, scaling*v/a+1)) / math.Log10(scaling)
}

// HistLog returns the grid passed through the log display stretch.
func (g1 *FloatGrid) HistLog(scaling float64, nBits int) FloatGrid {
	g2 := g1.NewFromThis()
	for i, v := range g1.values {
		g2.values[i] = HistLog(v, scaling, nBits)
	}
	return g2
}
