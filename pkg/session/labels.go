package session

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/abworrall/cmdphot/pkg/photom"
)

// A LabelsFile lists known standard magnitudes for some stars, and
// optionally their selection state, e.g.
//
//	[[star]]
//	index = 3
//	short = 12.31
//	long = 11.87
//	selected = false
type LabelsFile struct {
	Stars []LabelEntry `toml:"star"`
}

type LabelEntry struct {
	Index    int     `toml:"index"`
	Short    float64 `toml:"short"`
	Long     float64 `toml:"long"`
	Selected *bool   `toml:"selected,omitempty"`
}

// LoadLabels reads a labels file. Values that are not numbers are an
// ErrInvalidLabel.
func LoadLabels(filename string) (LabelsFile, error) {
	lf := LabelsFile{}
	b, err := os.ReadFile(filename)
	if err != nil {
		return lf, fmt.Errorf("labels read %s: %w", filename, err)
	}
	if err := toml.Unmarshal(b, &lf); err != nil {
		return lf, fmt.Errorf("labels %s: %v: %w", filename, err, photom.ErrInvalidLabel)
	}
	return lf, nil
}

// Apply sets the labels (and selections) of the file onto the stars.
// Stars not mentioned are left alone.
func (lf LabelsFile) Apply(stars photom.Stars) error {
	for _, e := range lf.Stars {
		if err := stars.SetLabel(e.Index, e.Short, e.Long); err != nil {
			return err
		}
		if e.Selected != nil {
			if err := stars.SetSelected(e.Index, *e.Selected); err != nil {
				return err
			}
		}
	}
	return nil
}

// LabelsFromStars lists every star, with its current label (0,0 if
// none) and selection, as a starting point for editing.
func LabelsFromStars(stars photom.Stars) LabelsFile {
	lf := LabelsFile{Stars: []LabelEntry{}}
	for _, s := range stars {
		sel := s.Selected
		e := LabelEntry{Index: s.Index, Selected: &sel}
		if s.Label != nil {
			e.Short, e.Long = s.Label.Short, s.Label.Long
		}
		lf.Stars = append(lf.Stars, e)
	}
	return lf
}

func (lf LabelsFile) Save(filename string) error {
	b, err := toml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("labels encode: %w", err)
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		return fmt.Errorf("labels write %s: %w", filename, err)
	}
	return nil
}
