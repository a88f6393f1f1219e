package photom

import (
	"math"
)

func within(x1, y1, x2, y2, tol float64) bool {
	return math.Abs(x1-x2) <= tol && math.Abs(y1-y2) <= tol
}

// MatchStars merges per-frame detections into the list of stars seen
// in every frame. Candidates must already be sorted brightest first.
//
// Two detections are the same star if they are within tol pixels of
// each other on both axes. The list is built frame by frame, adding a
// detection only if no listed star is close to it; then anything not
// seen in every frame is dropped. For the stars that remain, the
// position in each frame is the first detection close enough to it,
// and X,Y is the position in the first (reference) frame.
//
// Fewer than minStars survivors is an InsufficientStarsError.
func MatchStars(cands [][]StarCandidate, tol float64, minStars int) (Stars, error) {
	if len(cands) == 0 {
		return nil, ErrNoFrames
	}

	list := []Position{}
	for _, frame := range cands {
		for _, c := range frame {
			known := false
			for _, p := range list {
				if within(c.X, c.Y, p.X, p.Y, tol) {
					known = true
					break
				}
			}
			if !known {
				list = append(list, Position{c.X, c.Y})
			}
		}
	}

	findIn := func(frame []StarCandidate, p Position) (Position, bool) {
		for _, c := range frame {
			if within(c.X, c.Y, p.X, p.Y, tol) {
				return Position{c.X, c.Y}, true
			}
		}
		return Position{}, false
	}

	stars := Stars{}
	for _, p := range list {
		positions := make([]Position, len(cands))
		inAll := true
		for i, frame := range cands {
			pos, ok := findIn(frame, p)
			if !ok {
				inAll = false
				break
			}
			positions[i] = pos
		}
		if !inAll {
			continue
		}

		stars = append(stars, CanonicalStar{
			Index:     len(stars),
			X:         positions[0].X,
			Y:         positions[0].Y,
			Positions: positions,
			Selected:  true,
		})
	}

	if len(stars) < minStars {
		return stars, &InsufficientStarsError{Found: len(stars), Required: minStars}
	}

	Log.Info().Int("stars", len(stars)).Int("frames", len(cands)).Msgf("found %d stars", len(stars))
	return stars, nil
}
