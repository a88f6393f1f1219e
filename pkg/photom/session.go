package photom

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/abworrall/cmdphot/pkg/emath"
)

// Offsets holds the registration results of the three passes: within
// each band, and between the two masters.
type Offsets struct {
	Short   []Offset `json:"short"`
	Long    []Offset `json:"long"`
	Masters []Offset `json:"masters"`
}

// Result is everything a reduction run produces.
type Result struct {
	Masters     [2]Master
	MasterFiles []string
	Offsets     Offsets
	Stars       Stars
	Warnings    []Warning
}

// A Session carries the configuration and intermediate state of one
// reduction run through the pipeline stages.
type Session struct {
	Config Config
	Now    func() time.Time

	short, long FrameSet
	result      Result

	// the masters lined up on the short band master; Result.Masters
	// keeps them as stacked
	aligned []emath.FloatGrid
}

func NewSession(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{Config: cfg, Now: time.Now}, nil
}

func (s *Session) warn(ws ...Warning) {
	s.result.Warnings = append(s.result.Warnings, ws...)
}

// Run loads and calibrates the light frames, stacks a master per band,
// registers the masters against each other, finds the stars common to
// both, measures their fluxes and writes the master FITS files.
// Cancellation is checked between stages.
func (s *Session) Run(ctx context.Context) (Result, error) {
	stages := []struct {
		name string
		fn   func() error
	}{
		{"load", s.load},
		{"calibrate", s.calibrate},
		{"stack", s.stack},
		{"register masters", s.registerMasters},
		{"detect", s.detect},
		{"photometry", s.photometry},
		{"write masters", s.writeMasters},
		{"preview", s.preview},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return s.result, fmt.Errorf("before %s: %w", stage.name, err)
		}
		start := time.Now()
		if err := stage.fn(); err != nil {
			return s.result, fmt.Errorf("%s: %w", stage.name, err)
		}
		Log.Debug().Str("stage", stage.name).Dur("took", time.Since(start)).Msg("stage done")
	}

	return s.result, nil
}

func (s *Session) load() error {
	cfg := s.Config
	var err error

	if s.short, err = LoadFrameSet(cfg.ShortColour, cfg.PathLightShort); err != nil {
		return fmt.Errorf("could not load short wave files at %q: %w", cfg.PathLightShort, err)
	}
	if s.long, err = LoadFrameSet(cfg.LongColour, cfg.PathLightLong); err != nil {
		return fmt.Errorf("could not load long wave files at %q: %w", cfg.PathLightLong, err)
	}
	if err := CheckShapes(s.short.Frames[0].FloatGrid, s.long.Frames[0].FloatGrid); err != nil {
		return fmt.Errorf("short vs long: %w", err)
	}

	Log.Info().Str("short", s.short.String()).Str("long", s.long.String()).Msg("lights loaded")
	return nil
}

func (s *Session) calibrate() error {
	short, long, warnings, err := CalibrateLights(s.Config, s.short, s.long)
	s.warn(warnings...)
	if err != nil {
		return err
	}
	s.short, s.long = short, long
	return nil
}

func (s *Session) stack() error {
	sets := []FrameSet{s.short, s.long}
	offsets := []*[]Offset{&s.result.Offsets.Short, &s.result.Offsets.Long}

	for i, fs := range sets {
		reg := Registration{Ref: 0, Workers: s.Config.Workers, Name: fs.Band, Debug: s.Config.Verbosity > 0}
		aligned, offs, warnings, err := reg.RegisterAndAlign(fs.Grids())
		s.warn(warnings...)
		if err != nil {
			return fmt.Errorf("band %s: %w", fs.Band, err)
		}

		master, err := Combine(aligned, s.Config.MedianCombine())
		if err != nil {
			return fmt.Errorf("band %s: %w", fs.Band, err)
		}

		*offsets[i] = offs
		s.result.Masters[i] = Master{Band: fs.Band, NFrames: fs.Len(), Header: fs.Header(), FloatGrid: master}
		Log.Info().Str("band", fs.Band).Int("frames", fs.Len()).Str("combine", s.Config.Combine).Msg("master stacked")
	}

	// The per-frame grids are no longer needed
	s.short, s.long = FrameSet{Band: s.short.Band}, FrameSet{Band: s.long.Band}
	return nil
}

func (s *Session) masterGrids() []emath.FloatGrid {
	return []emath.FloatGrid{s.result.Masters[0].FloatGrid, s.result.Masters[1].FloatGrid}
}

// alignedGrids is what star detection and photometry run on.
func (s *Session) alignedGrids() []emath.FloatGrid {
	if s.aligned != nil {
		return s.aligned
	}
	return s.masterGrids()
}

// registerMasters lines a copy of the long band master up with the
// short band master, which is the reference for star positions.
func (s *Session) registerMasters() error {
	reg := Registration{Ref: 0, Workers: s.Config.Workers, Name: "masters", Debug: s.Config.Verbosity > 0}
	aligned, offs, warnings, err := reg.RegisterAndAlign(s.masterGrids())
	s.warn(warnings...)
	if err != nil {
		return err
	}

	s.result.Offsets.Masters = offs
	s.aligned = aligned
	return nil
}

func (s *Session) detect() error {
	grids := s.alignedGrids()
	stats := FrameStats(grids, s.Config.Workers)
	for i, st := range stats {
		Log.Debug().Str("band", s.result.Masters[i].Band).Str("stats", st.String()).Msg("master stats")
	}

	det := NewDetector(s.Config.DetectParams())
	cands := det.FindAll(grids, stats, s.Config.Workers)

	stars, err := MatchStars(cands, s.Config.MatchTolerance, s.Config.NStarsMin)
	if err != nil {
		return err
	}
	s.result.Stars = stars
	return nil
}

func (s *Session) photometry() error {
	grids := s.alignedGrids()
	stats := FrameStats(grids, s.Config.Workers)

	flux, err := s.Config.Photometry().Measure(grids, stats, s.result.Stars)
	if err != nil {
		return err
	}
	for j := range s.result.Stars {
		s.result.Stars[j].Flux = [2]float64{flux[0][j], flux[1][j]}
	}
	return nil
}

func (s *Session) writeMasters() error {
	files, err := WriteMasters(s.Config.PathResult, s.result.Masters[:], s.Now())
	if err != nil {
		return err
	}
	s.result.MasterFiles = files
	return nil
}

func (s *Session) preview() error {
	if !s.Config.Preview {
		return nil
	}

	pi := NewPreviewImage(s.result.Masters[0].FloatGrid)
	base := filepath.Join(s.Config.PathResult, s.result.Masters[0].Band+"_preview")
	if err := pi.WriteToHDR(base + ".hdr"); err != nil {
		return err
	}
	radius := s.Config.Photometry().Radius
	if err := WriteOverlay(pi, s.Config.Tonemapper, s.result.Stars, radius, base+".png"); err != nil {
		return err
	}

	Log.Info().Str("file", base+".png").Msg("preview written")
	return nil
}

// ExportDiagram calibrates the stars, builds the diagram and writes the
// table into the result directory.
func ExportDiagram(cfg Config, stars Stars, reddening float64, now time.Time) (Diagram, string, error) {
	mags, err := Calibrate(stars)
	if err != nil {
		return Diagram{}, "", err
	}
	d, err := BuildDiagram(stars, mags, cfg.ShortColour, cfg.LongColour, reddening)
	if err != nil {
		return d, "", err
	}
	filename, err := ExportTable(cfg.PathResult, d, now)
	return d, filename, err
}
