package photom

import (
	"fmt"
	"math"
)

// Position is a sub-pixel location in a frame.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// A Label is a pair of standard magnitudes that the user knows for a
// star, one per band.
type Label struct {
	Short float64 `json:"short"`
	Long  float64 `json:"long"`
}

// NewLabel checks a pair of magnitudes. Both zero means "no label", and
// yields nil.
func NewLabel(short, long float64) (*Label, error) {
	if math.IsNaN(short) || math.IsInf(short, 0) || math.IsNaN(long) || math.IsInf(long, 0) {
		return nil, fmt.Errorf("magnitudes (%v,%v) are not finite: %w", short, long, ErrInvalidLabel)
	}
	if short == 0 && long == 0 {
		return nil, nil
	}
	return &Label{Short: short, Long: long}, nil
}

// A CanonicalStar is a star found in every frame it was matched over.
// X,Y is its position in the reference frame; Positions holds where it
// was found in each frame; Flux holds the short and long band aperture
// sums.
type CanonicalStar struct {
	Index     int        `json:"index"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Positions []Position `json:"positions"`
	Flux      [2]float64 `json:"flux"`
	Selected  bool       `json:"selected"`
	Label     *Label     `json:"label,omitempty"`
}

func (cs CanonicalStar) String() string {
	s := fmt.Sprintf("star %03d (%6.1f,%6.1f) flux[%.1f, %.1f]", cs.Index, cs.X, cs.Y, cs.Flux[0], cs.Flux[1])
	if !cs.Selected {
		s += " unselected"
	}
	if cs.Label != nil {
		s += fmt.Sprintf(" label[%.3f, %.3f]", cs.Label.Short, cs.Label.Long)
	}
	return s
}

// Stars is the canonical star list of a session, in index order.
type Stars []CanonicalStar

func (ss Stars) find(index int) (*CanonicalStar, error) {
	for i := range ss {
		if ss[i].Index == index {
			return &ss[i], nil
		}
	}
	return nil, fmt.Errorf("star %d: %w", index, ErrUnknownStar)
}

// SetLabel labels a star; magnitudes of (0,0) remove the label.
func (ss Stars) SetLabel(index int, short, long float64) error {
	s, err := ss.find(index)
	if err != nil {
		return err
	}
	l, err := NewLabel(short, long)
	if err != nil {
		return err
	}
	s.Label = l

	if l == nil {
		Log.Info().Int("star", index).Msg("label removed")
	} else {
		Log.Info().Int("star", index).Float64("short", short).Float64("long", long).Msg("label set")
	}
	return nil
}

func (ss Stars) SetSelected(index int, selected bool) error {
	s, err := ss.find(index)
	if err != nil {
		return err
	}
	s.Selected = selected
	return nil
}

// ToggleSelection flips the selection of every star.
func (ss Stars) ToggleSelection() {
	for i := range ss {
		ss[i].Selected = !ss[i].Selected
	}
}

func (ss Stars) Labelled() Stars {
	out := Stars{}
	for _, s := range ss {
		if s.Label != nil {
			out = append(out, s)
		}
	}
	return out
}
