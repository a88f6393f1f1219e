package fft

import (
	"image"
	"math"
	"math/cmplx"
	"testing"

	"github.com/abworrall/cmdphot/pkg/emath"
)

func TestNextPow2(t *testing.T) {
	tests := []struct{ in, want int }{{1, 1}, {2, 2}, {3, 4}, {127, 128}, {128, 128}, {129, 256}}
	for _, tt := range tests {
		if got := NextPow2(tt.in); got != tt.want {
			t.Errorf("NextPow2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPlan_RoundTrip(t *testing.T) {
	p := NewPlan(8, 4)
	orig := make([]complex128, 32)
	for i := range orig {
		orig[i] = complex(float64(i%5), 0)
	}
	a := append([]complex128(nil), orig...)

	p.Forward(a)
	p.Inverse(a)

	for i := range a {
		if cmplx.Abs(a[i]-orig[i]) > 1e-9 {
			t.Fatalf("value %d: got %v, want %v", i, a[i], orig[i])
		}
	}
}

func TestPlan_DCTerm(t *testing.T) {
	p := NewPlan(4, 4)
	a := make([]complex128, 16)
	for i := range a {
		a[i] = 1
	}
	p.Forward(a)
	if math.Abs(real(a[0])-16) > 1e-9 {
		t.Errorf("DC term = %v, want 16", a[0])
	}
}

func blobGrid(w, h int, pts ...image.Point) emath.FloatGrid {
	fg := emath.NewFloatGrid(w, h)
	for _, p := range pts {
		fg.Set(p.X, p.Y, 1)
	}
	return fg
}

func TestCorrelator_Peak(t *testing.T) {
	// An asymmetric pattern, so there is a single best overlap
	pattern := []image.Point{{10, 10}, {11, 10}, {10, 11}, {20, 5}, {5, 25}}
	ref := blobGrid(32, 32, pattern...)
	c := NewCorrelator(ref)
	plan := c.NewPlan()

	refPeak, err := c.Peak(plan, ref)
	if err != nil {
		t.Fatalf("Peak(ref): %v", err)
	}
	if refPeak != (image.Point{31, 31}) {
		t.Errorf("autocorrelation peak at %v, want (31,31)", refPeak)
	}

	moved := ref.Shift(3, -2)
	got, err := c.Peak(plan, moved)
	if err != nil {
		t.Fatalf("Peak(moved): %v", err)
	}
	if d := refPeak.Sub(got); d != (image.Point{3, -2}) {
		t.Errorf("refPeak - peak = %v, want (3,-2)", d)
	}
}

func TestCorrelator_SizeMismatch(t *testing.T) {
	c := NewCorrelator(emath.NewFloatGrid(16, 16))
	if _, err := c.Peak(c.NewPlan(), emath.NewFloatGrid(8, 16)); err == nil {
		t.Errorf("expected an error for a differently sized grid")
	}
	if _, err := c.Peak(NewPlan(4, 4), emath.NewFloatGrid(16, 16)); err == nil {
		t.Errorf("expected an error for a wrongly sized plan")
	}
}
