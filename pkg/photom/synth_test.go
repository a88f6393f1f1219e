package photom

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abworrall/cmdphot/pkg/emath"
)

// Synthetic frames for tests: a flat sky with gaussian noise, plus round
// gaussian stars.

type synthStar struct {
	X, Y float64
	Amp  float64
}

type synthSky struct {
	W, H       int
	Background float64
	Noise      float64
	FWHM       float64
	Stars      []synthStar
}

// frame renders the sky with every star moved by (dx,dy).
func (sky synthSky) frame(seed int64, dx, dy int) emath.FloatGrid {
	rng := rand.New(rand.NewSource(seed))
	fg := emath.NewFloatGrid(sky.W, sky.H)
	sigma := sky.FWHM * gaussianFWHMToSigma

	for y := 0; y < sky.H; y++ {
		for x := 0; x < sky.W; x++ {
			v := sky.Background + rng.NormFloat64()*sky.Noise
			for _, s := range sky.Stars {
				ddx := float64(x) - (s.X + float64(dx))
				ddy := float64(y) - (s.Y + float64(dy))
				r2 := ddx*ddx + ddy*ddy
				if r2 < 100*sigma*sigma {
					v += s.Amp * math.Exp(-r2/(2*sigma*sigma))
				}
			}
			fg.Set(x, y, v)
		}
	}
	return fg
}

// writeFITSFrames writes grids as FITS files into a new directory, and
// returns the directory.
func writeFITSFrames(t *testing.T, parent, name string, grids ...emath.FloatGrid) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for i, g := range grids {
		f, err := os.Create(filepath.Join(dir, name+"-"+string(rune('a'+i))+".fits"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		m := Master{Band: name, NFrames: 1, Header: Header{{Name: "EXPTIME", Value: 30.0}}, FloatGrid: g}
		if err := m.EncodeFITS(f, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)); err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	return dir
}

func constGrid(w, h int, v float64) emath.FloatGrid {
	fg := emath.NewFloatGrid(w, h)
	for i := range fg.Values() {
		fg.Values()[i] = v
	}
	return fg
}
