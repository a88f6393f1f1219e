package photom

import (
	"fmt"
	"math"
)

// A DiagramRow is one selected star, as it goes into the exported
// table.
type DiagramRow struct {
	Index        int     `json:"index"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	FluxShort    float64 `json:"flux_short"`
	FluxLong     float64 `json:"flux_long"`
	MagShort     float64 `json:"mag_short"`
	MagLong      float64 `json:"mag_long"`
	ColourIndex  float64 `json:"colour_index"`
	ColourIndex0 float64 `json:"colour_index_0"` // reddening corrected
}

// A DiagramPoint is a plottable point: reddening-corrected colour index
// against long band magnitude.
type DiagramPoint struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// A Diagram is the colour-magnitude diagram for the selected stars.
type Diagram struct {
	ShortBand string         `json:"short_band"`
	LongBand  string         `json:"long_band"`
	Reddening float64        `json:"reddening"`
	Arbitrary bool           `json:"arbitrary"`
	RefStar   int            `json:"ref_star"` // zero-point star in arbitrary mode, else -1
	XLabel    string         `json:"x_label"`
	YLabel    string         `json:"y_label"`
	Rows      []DiagramRow   `json:"rows"`
	Points    []DiagramPoint `json:"points"`
}

// ColourIndex is m_short - m_long; NaN in gives NaN out.
func ColourIndex(magShort, magLong float64) float64 { return magShort - magLong }

// BuildDiagram assembles the diagram from the calibrated magnitudes.
// Only selected stars are included. Stars with undefined magnitudes
// stay in Rows, but not in Points.
func BuildDiagram(stars Stars, mags Magnitudes, shortBand, longBand string, reddening float64) (Diagram, error) {
	if len(mags.Short) != len(stars) || len(mags.Long) != len(stars) {
		return Diagram{}, fmt.Errorf("have magnitudes for %d/%d stars, want %d", len(mags.Short), len(mags.Long), len(stars))
	}

	unit := "[mag]"
	if mags.Arbitrary {
		unit = "[a.u.]"
	}

	d := Diagram{
		ShortBand: shortBand,
		LongBand:  longBand,
		Reddening: reddening,
		Arbitrary: mags.Arbitrary,
		RefStar:   -1,
		XLabel:    fmt.Sprintf("Colour Index (%s-%s) %s", shortBand, longBand, unit),
		YLabel:    fmt.Sprintf("%s %s", longBand, unit),
		Rows:      []DiagramRow{},
		Points:    []DiagramPoint{},
	}

	if mags.Arbitrary && mags.RefIndex >= 0 && mags.RefIndex < len(stars) {
		d.RefStar = stars[mags.RefIndex].Index
	}

	for i, s := range stars {
		if !s.Selected {
			continue
		}
		ci := ColourIndex(mags.Short[i], mags.Long[i])
		row := DiagramRow{
			Index:        s.Index,
			X:            s.X,
			Y:            s.Y,
			FluxShort:    s.Flux[0],
			FluxLong:     s.Flux[1],
			MagShort:     mags.Short[i],
			MagLong:      mags.Long[i],
			ColourIndex:  ci,
			ColourIndex0: ci - reddening,
		}
		d.Rows = append(d.Rows, row)

		if !math.IsNaN(row.ColourIndex0) && !math.IsNaN(row.MagLong) {
			d.Points = append(d.Points, DiagramPoint{Index: s.Index, X: row.ColourIndex0, Y: row.MagLong})
		}
	}

	return d, nil
}
