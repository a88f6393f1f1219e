package photom

import (
	"fmt"

	"github.com/abworrall/cmdphot/pkg/emath"
)

// DarkCorrect subtracts the median-combined master dark from each
// light frame.
func DarkCorrect(lights, darks []emath.FloatGrid) ([]emath.FloatGrid, error) {
	masterDark, err := Combine(darks, true)
	if err != nil {
		return nil, fmt.Errorf("master dark: %w", err)
	}
	if err := CheckShapes(append([]emath.FloatGrid{masterDark}, lights...)...); err != nil {
		return nil, fmt.Errorf("dark vs lights: %w", err)
	}

	out := make([]emath.FloatGrid, len(lights))
	for i := range lights {
		out[i] = lights[i].Sub(masterDark)
	}
	return out, nil
}

// FlatCorrect divides each light frame by the median-combined master
// flat, normalised by its own median so the lights keep their level.
func FlatCorrect(lights, flats []emath.FloatGrid) ([]emath.FloatGrid, error) {
	masterFlat, err := Combine(flats, true)
	if err != nil {
		return nil, fmt.Errorf("master flat: %w", err)
	}
	if err := CheckShapes(append([]emath.FloatGrid{masterFlat}, lights...)...); err != nil {
		return nil, fmt.Errorf("flat vs lights: %w", err)
	}

	med := masterFlat.Median()
	if med == 0 {
		return nil, fmt.Errorf("master flat has a median of zero")
	}
	norm := masterFlat.Scale(1.0 / med)

	out := make([]emath.FloatGrid, len(lights))
	for i := range lights {
		out[i] = lights[i].Div(norm)
	}
	return out, nil
}

// loadOptionalFrames loads the calibration frames at path. A path that
// names no frames is not an error; found is false and the caller
// decides what to warn about.
func loadOptionalFrames(kind, path string) (fs FrameSet, found bool, err error) {
	files, err := FindFrameFiles(path)
	if err != nil {
		return fs, false, err
	}
	if len(files) == 0 {
		return fs, false, nil
	}
	fs, err = LoadFrames(kind, files)
	if err != nil {
		return fs, false, err
	}
	return fs, true, nil
}

// CalibrateLights applies the dark and flat corrections the config asks
// for to both bands. Missing calibration frames skip that step with a
// warning; unreadable ones are an error.
func CalibrateLights(cfg Config, short, long FrameSet) (FrameSet, FrameSet, []Warning, error) {
	warnings := []Warning{}
	warn := func(msg string) {
		Log.Warn().Str("stage", "calibrate").Msg(msg)
		warnings = append(warnings, Warning{Stage: "calibrate", Message: msg})
	}

	bands := []*FrameSet{&short, &long}
	darkPaths := []string{cfg.PathDarkShort, cfg.PathDarkLong}
	flatPaths := []string{cfg.PathFlatShort, cfg.PathFlatLong}
	names := []string{"short", "long"}

	if cfg.DoDark {
		for i, fs := range bands {
			darks, found, err := loadOptionalFrames("dark-"+names[i], darkPaths[i])
			if err != nil {
				return short, long, warnings, err
			}
			if !found {
				warn(fmt.Sprintf("could not find files for %s wave dark correction (%q)", names[i], darkPaths[i]))
				continue
			}
			grids, err := DarkCorrect(fs.Grids(), darks.Grids())
			if err != nil {
				return short, long, warnings, fmt.Errorf("%s wave dark correction: %w", names[i], err)
			}
			*fs = fs.WithGrids(grids)
			Log.Info().Str("band", fs.Band).Int("darks", darks.Len()).Msg("dark corrected")
		}
	}

	if cfg.DoFlat {
		var flatDarks []emath.FloatGrid
		if cfg.DoDarkFlat {
			fd, found, err := loadOptionalFrames("dark-flat", cfg.PathDarkFlat)
			if err != nil {
				return short, long, warnings, err
			}
			if found {
				flatDarks = fd.Grids()
			} else {
				warn(fmt.Sprintf("could not find files for dark correction of flats (%q)", cfg.PathDarkFlat))
			}
		}

		for i, fs := range bands {
			flats, found, err := loadOptionalFrames("flat-"+names[i], flatPaths[i])
			if err != nil {
				return short, long, warnings, err
			}
			if !found {
				warn(fmt.Sprintf("could not find files for %s wave flatfielding (%q)", names[i], flatPaths[i]))
				continue
			}
			flatGrids := flats.Grids()
			if flatDarks != nil {
				if flatGrids, err = DarkCorrect(flatGrids, flatDarks); err != nil {
					return short, long, warnings, fmt.Errorf("dark correction of %s wave flats: %w", names[i], err)
				}
			}
			grids, err := FlatCorrect(fs.Grids(), flatGrids)
			if err != nil {
				return short, long, warnings, fmt.Errorf("%s wave flatfielding: %w", names[i], err)
			}
			*fs = fs.WithGrids(grids)
			Log.Info().Str("band", fs.Band).Int("flats", flats.Len()).Msg("flat fielded")
		}
	}

	return short, long, warnings, nil
}
