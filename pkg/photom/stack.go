package photom

import (
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/cmdphot/pkg/emath"
)

// Combine merges frames into a master, pixel by pixel: the median
// (useMedian) or the mean of the values at each position. A single
// frame is returned as a copy.
func Combine(frames []emath.FloatGrid, useMedian bool) (emath.FloatGrid, error) {
	if err := CheckShapes(frames...); err != nil {
		return emath.FloatGrid{}, err
	}
	if len(frames) == 1 {
		return frames[0].Copy(), nil
	}

	master := frames[0].NewFromThis()
	out := master.Values()
	column := make([]float64, len(frames))

	for i := range out {
		for j := range frames {
			column[j] = frames[j].Values()[i]
		}
		if useMedian {
			out[i] = emath.MedianInPlace(column)
		} else {
			out[i] = stat.Mean(column, nil)
		}
	}

	return master, nil
}
