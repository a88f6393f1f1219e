package photom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// In arbitrary-unit mode the zero-point star is given this magnitude in
// both bands.
const ArbitraryRefMag = 10.0

// InstrumentalMag is -2.5 log10(flux); NaN unless flux > 0.
func InstrumentalMag(flux float64) float64 {
	if !(flux > 0) {
		return math.NaN()
	}
	return -2.5 * math.Log10(flux)
}

// A CalibrationFit maps instrumental magnitudes of one band onto the
// standard system: standard = Slope*instrumental + Intercept.
type CalibrationFit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	NRefs     int     `json:"n_refs"`
}

func (cf CalibrationFit) Apply(instMag float64) float64 { return cf.Slope*instMag + cf.Intercept }

func (cf CalibrationFit) String() string {
	return fmt.Sprintf("m = %.4f*m_inst %+.4f (%d refs)", cf.Slope, cf.Intercept, cf.NRefs)
}

// FitCalibration fits standard = slope*inst + intercept by least
// squares. With only one reference, or references that all share the
// same instrumental magnitude, the slope is fixed at 1 and only the
// zero-point is fitted.
func FitCalibration(inst, standard []float64) (CalibrationFit, error) {
	if len(inst) != len(standard) {
		return CalibrationFit{}, fmt.Errorf("%d instrumental vs %d standard magnitudes", len(inst), len(standard))
	}
	if len(inst) == 0 {
		return CalibrationFit{}, fmt.Errorf("no reference stars")
	}

	if len(inst) == 1 || floats.Max(inst) == floats.Min(inst) {
		diffs := make([]float64, len(inst))
		floats.SubTo(diffs, standard, inst)
		return CalibrationFit{Slope: 1, Intercept: stat.Mean(diffs, nil), NRefs: len(inst)}, nil
	}

	alpha, beta := stat.LinearRegression(inst, standard, nil, false)
	return CalibrationFit{Slope: beta, Intercept: alpha, NRefs: len(inst)}, nil
}

// Magnitudes are the calibrated magnitudes of a star list, in list
// order. A star without positive flux in both bands gets NaN in both.
type Magnitudes struct {
	Short     []float64
	Long      []float64
	Arbitrary bool               // no labels; relative to the zero-point star
	Fits      [2]*CalibrationFit // nil in arbitrary mode
	RefIndex  int                // the zero-point star, in arbitrary mode
}

func hasFlux(s CanonicalStar) bool { return s.Flux[0] > 0 && s.Flux[1] > 0 }

// Calibrate turns the stars' fluxes into magnitudes. Labelled stars
// with positive flux are the references for a per-band linear fit; if
// no star is labelled at all, magnitudes are relative to the first star
// with positive flux in both bands, which is put at ArbitraryRefMag.
// Fluxes are never modified.
func Calibrate(stars Stars) (Magnitudes, error) {
	if len(stars) == 0 {
		return Magnitudes{}, ErrNoStars
	}

	m := Magnitudes{
		Short:    make([]float64, len(stars)),
		Long:     make([]float64, len(stars)),
		RefIndex: -1,
	}

	labelled := stars.Labelled()
	if len(labelled) == 0 {
		return calibrateArbitrary(stars, m)
	}

	for band := 0; band < 2; band++ {
		inst, standard := []float64{}, []float64{}
		for _, s := range labelled {
			if s.Flux[band] > 0 {
				inst = append(inst, InstrumentalMag(s.Flux[band]))
				if band == 0 {
					standard = append(standard, s.Label.Short)
				} else {
					standard = append(standard, s.Label.Long)
				}
			}
		}
		if len(inst) == 0 {
			return Magnitudes{}, fmt.Errorf("band %d: none of the %d labelled stars has a positive flux: %w", band, len(labelled), ErrNoStars)
		}
		fit, err := FitCalibration(inst, standard)
		if err != nil {
			return Magnitudes{}, err
		}
		m.Fits[band] = &fit
		Log.Debug().Int("band", band).Str("fit", fit.String()).Msg("calibration fit")
	}

	for i, s := range stars {
		if !hasFlux(s) {
			m.Short[i], m.Long[i] = math.NaN(), math.NaN()
			continue
		}
		m.Short[i] = m.Fits[0].Apply(InstrumentalMag(s.Flux[0]))
		m.Long[i] = m.Fits[1].Apply(InstrumentalMag(s.Flux[1]))
	}

	return m, nil
}

func calibrateArbitrary(stars Stars, m Magnitudes) (Magnitudes, error) {
	m.Arbitrary = true
	for i, s := range stars {
		if hasFlux(s) {
			m.RefIndex = i
			Log.Info().Int("star", s.Index).Float64("mag", ArbitraryRefMag).Msg("no labels, magnitudes relative to the zero-point star")
			break
		}
	}

	for i, s := range stars {
		if m.RefIndex < 0 || !hasFlux(s) {
			m.Short[i], m.Long[i] = math.NaN(), math.NaN()
			continue
		}
		ref := stars[m.RefIndex]
		m.Short[i] = -2.5*math.Log10(s.Flux[0]/ref.Flux[0]) + ArbitraryRefMag
		m.Long[i] = -2.5*math.Log10(s.Flux[1]/ref.Flux[1]) + ArbitraryRefMag
	}

	return m, nil
}
