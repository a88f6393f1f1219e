package photom

import (
	"errors"
	"testing"
)

func cands(xy ...float64) []StarCandidate {
	out := []StarCandidate{}
	for i := 0; i+1 < len(xy); i += 2 {
		out = append(out, StarCandidate{X: xy[i], Y: xy[i+1]})
	}
	return out
}

func TestMatchStars(t *testing.T) {
	frames := [][]StarCandidate{
		cands(10, 10, 50, 50, 80, 20),
		cands(13, 12, 54, 50, 90, 90),
	}

	tests := []struct {
		name string
		tol  float64
		want []Position // canonical positions
	}{
		{"tolerance is inclusive", 4, []Position{{10, 10}, {50, 50}}},
		{"tight tolerance", 3, []Position{{10, 10}}},
		{"loose tolerance", 100, []Position{{10, 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stars, err := MatchStars(frames, tt.tol, 1)
			if err != nil {
				t.Fatalf("MatchStars: %v", err)
			}
			if len(stars) != len(tt.want) {
				t.Fatalf("got %d stars, want %d: %v", len(stars), len(tt.want), stars)
			}
			for i, s := range stars {
				if s.Index != i {
					t.Errorf("star %d has index %d", i, s.Index)
				}
				if s.X != tt.want[i].X || s.Y != tt.want[i].Y {
					t.Errorf("star %d at (%v,%v), want %v", i, s.X, s.Y, tt.want[i])
				}
				if !s.Selected {
					t.Errorf("star %d not selected", i)
				}
				if len(s.Positions) != 2 {
					t.Errorf("star %d has %d positions, want 2", i, len(s.Positions))
				}
			}
		})
	}
}

func TestMatchStars_PositionsPerFrame(t *testing.T) {
	frames := [][]StarCandidate{
		cands(10, 10, 50, 50),
		cands(13, 12, 54, 50),
	}
	stars, err := MatchStars(frames, 4, 2)
	if err != nil {
		t.Fatalf("MatchStars: %v", err)
	}
	if got := stars[0].Positions[1]; got != (Position{13, 12}) {
		t.Errorf("star 0 in frame 1 at %v, want (13,12)", got)
	}
	if got := stars[1].Positions[1]; got != (Position{54, 50}) {
		t.Errorf("star 1 in frame 1 at %v, want (54,50)", got)
	}
}

func TestMatchStars_ReferencePosition(t *testing.T) {
	// (17,10) is first listed from frame 1, but the star's position is
	// where it sits in frame 0.
	frames := [][]StarCandidate{
		cands(10, 10, 13, 10),
		cands(17, 10, 10, 10),
	}
	stars, err := MatchStars(frames, 4, 2)
	if err != nil {
		t.Fatalf("MatchStars: %v", err)
	}
	for i, s := range stars {
		if s.X != s.Positions[0].X || s.Y != s.Positions[0].Y {
			t.Errorf("star %d at (%v,%v), want its frame 0 position %v", i, s.X, s.Y, s.Positions[0])
		}
	}
	if got := stars[1]; got.X != 13 || got.Y != 10 || got.Positions[1] != (Position{17, 10}) {
		t.Errorf("star 1 = %v, want (13,10) in frame 0 and (17,10) in frame 1", got)
	}
}

func TestMatchStars_Insufficient(t *testing.T) {
	frames := [][]StarCandidate{
		cands(10, 10, 50, 50),
		cands(11, 10),
	}
	_, err := MatchStars(frames, 4, 2)
	if !errors.Is(err, ErrInsufficientStars) {
		t.Fatalf("got %v, want ErrInsufficientStars", err)
	}
	var ise *InsufficientStarsError
	if !errors.As(err, &ise) {
		t.Fatalf("got %T, want *InsufficientStarsError", err)
	}
	if ise.Found != 1 || ise.Required != 2 {
		t.Errorf("got found=%d required=%d, want 1/2", ise.Found, ise.Required)
	}
}

func TestMatchStars_NoFrames(t *testing.T) {
	if _, err := MatchStars(nil, 4, 1); !errors.Is(err, ErrNoFrames) {
		t.Errorf("got %v, want ErrNoFrames", err)
	}
	if _, err := MatchStars([][]StarCandidate{{}, {}}, 4, 1); !errors.Is(err, ErrInsufficientStars) {
		t.Errorf("empty frames: got %v, want ErrInsufficientStars", err)
	}
}
