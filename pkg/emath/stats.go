package emath

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	DefaultClipSigma    = 3.0
	DefaultClipMaxIters = 5
)

// ClippedStats is the (mean, median, stddev) triple left after sigma
// clipping. The stddev is the population value.
type ClippedStats struct {
	Mean   float64
	Median float64
	StdDev float64
	N      int // how many values survived clipping
}

func (cs ClippedStats) String() string {
	return fmt.Sprintf("stats{mean=%.3f, median=%.3f, std=%.3f, n=%d}", cs.Mean, cs.Median, cs.StdDev, cs.N)
}

// SigmaClip computes iteratively sigma-clipped statistics. On each pass
// anything further than sigma*std from the median is dropped, until a
// pass removes nothing or maxIters passes have run. NaNs are ignored.
//
// Since clipping is a bound on value, the survivors are always a
// contiguous run of the sorted input, so we sort once and just move the
// two ends inwards.
func SigmaClip(values []float64, sigma float64, maxIters int) ClippedStats {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return ClippedStats{Mean: math.NaN(), Median: math.NaN(), StdDev: math.NaN()}
	}
	sort.Float64s(sorted)

	lo, hi := 0, len(sorted)
	for iter := 0; iter < maxIters; iter++ {
		kept := sorted[lo:hi]
		center := medianOfSorted(kept)
		std := math.Sqrt(stat.PopVariance(kept, nil))
		lower := center - sigma*std
		upper := center + sigma*std

		newLo, newHi := lo, hi
		for newLo < newHi && sorted[newLo] < lower {
			newLo++
		}
		for newHi > newLo && sorted[newHi-1] > upper {
			newHi--
		}
		if newLo == lo && newHi == hi {
			break
		}
		lo, hi = newLo, newHi
		if lo == hi {
			break
		}
	}

	kept := sorted[lo:hi]
	if len(kept) == 0 {
		return ClippedStats{Mean: math.NaN(), Median: math.NaN(), StdDev: math.NaN()}
	}
	return ClippedStats{
		Mean:   stat.Mean(kept, nil),
		Median: medianOfSorted(kept),
		StdDev: math.Sqrt(stat.PopVariance(kept, nil)),
		N:      len(kept),
	}
}

// ClippedStats runs SigmaClip with the default 3 sigma / 5 iterations.
func (fg *FloatGrid) ClippedStats() ClippedStats {
	return SigmaClip(fg.values, DefaultClipSigma, DefaultClipMaxIters)
}

// Median returns the median of vals, averaging the two central values
// when there is an even number of them. vals is not modified.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return medianOfSorted(sorted)
}

// MedianInPlace is Median, but sorts vals as a side effect. Used in the
// hot per-pixel stacking loop to avoid an allocation per pixel.
func MedianInPlace(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	return medianOfSorted(vals)
}

func medianOfSorted(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}

func (fg *FloatGrid) Median() float64 { return Median(fg.values) }
