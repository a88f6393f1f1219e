package emath

import (
	"math"
	"testing"
)

func gridFrom(t *testing.T, w, h int, vals ...float64) FloatGrid {
	t.Helper()
	fg, err := NewFloatGridFromValues(w, h, vals)
	if err != nil {
		t.Fatalf("NewFloatGridFromValues: %v", err)
	}
	return fg
}

func TestNewFloatGridFromValues_BadShape(t *testing.T) {
	if _, err := NewFloatGridFromValues(3, 2, make([]float64, 5)); err == nil {
		t.Errorf("expected error for 5 values in a 3x2 grid")
	}
	if _, err := NewFloatGridFromValues(0, 2, nil); err == nil {
		t.Errorf("expected error for zero width")
	}
}

func TestFloatGrid_Shift(t *testing.T) {
	src := gridFrom(t, 3, 3,
		1, 2, 3,
		4, 5, 6,
		7, 8, 9)

	tests := []struct {
		name   string
		dx, dy int
		want   []float64
	}{
		{"none", 0, 0, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"right", 1, 0, []float64{0, 1, 2, 0, 4, 5, 0, 7, 8}},
		{"left", -1, 0, []float64{2, 3, 0, 5, 6, 0, 8, 9, 0}},
		{"down", 0, 1, []float64{0, 0, 0, 1, 2, 3, 4, 5, 6}},
		{"upleft", -1, -1, []float64{5, 6, 0, 8, 9, 0, 0, 0, 0}},
		{"offgrid", 5, 0, []float64{0, 0, 0, 0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := src.Shift(tt.dx, tt.dy)
			for i, v := range got.Values() {
				if v != tt.want[i] {
					t.Fatalf("Shift(%d,%d) = %v, want %v", tt.dx, tt.dy, got.Values(), tt.want)
				}
			}
		})
	}

	if src.Get(0, 0) != 1 {
		t.Errorf("Shift modified its receiver")
	}
}

func TestFloatGrid_ShiftRoundTrip(t *testing.T) {
	src := NewFloatGrid(10, 8)
	src.Set(4, 4, 7)
	back := src.Shift(3, -2)
	back = back.Shift(-3, 2)
	if back.Get(4, 4) != 7 {
		t.Errorf("round trip lost the pixel: %s", back.Stats())
	}
}

func TestFloatGrid_Reverse(t *testing.T) {
	src := gridFrom(t, 3, 2,
		1, 2, 3,
		4, 5, 6)
	got := src.Reverse()
	want := []float64{6, 5, 4, 3, 2, 1}
	for i, v := range got.Values() {
		if v != want[i] {
			t.Fatalf("Reverse = %v, want %v", got.Values(), want)
		}
	}
}

func TestFloatGrid_Arith(t *testing.T) {
	a := gridFrom(t, 2, 1, 10, 20)
	b := gridFrom(t, 2, 1, 2, 4)

	if d := a.Sub(b); d.Get(0, 0) != 8 || d.Get(1, 0) != 16 {
		t.Errorf("Sub = %v", d.Values())
	}
	if d := a.Div(b); d.Get(0, 0) != 5 || d.Get(1, 0) != 5 {
		t.Errorf("Div = %v", d.Values())
	}
	if d := a.Scale(0.5); d.Get(1, 0) != 10 {
		t.Errorf("Scale = %v", d.Values())
	}
	if a.Get(0, 0) != 10 {
		t.Errorf("arith modified its receiver")
	}
}

func TestFloatGrid_Binarize(t *testing.T) {
	src := gridFrom(t, 4, 1, -1, 0.5, 1, 3)
	got := src.Binarize(1)
	want := []float64{0, 0, 1, 1}
	for i, v := range got.Values() {
		if v != want[i] {
			t.Fatalf("Binarize = %v, want %v", got.Values(), want)
		}
	}
}

func TestHistLog_Endpoints(t *testing.T) {
	full := math.Pow(2, 16) - 1
	if v := HistLog(0, DefaultHistLogScaling, DefaultHistLogBits); v != 0 {
		t.Errorf("HistLog(0) = %f, want 0", v)
	}
	if v := HistLog(full, DefaultHistLogScaling, DefaultHistLogBits); math.Abs(v-full) > 1.0 {
		t.Errorf("HistLog(full) = %f, want ~%f", v, full)
	}
	if v := HistLog(100, DefaultHistLogScaling, DefaultHistLogBits); v <= 100 {
		t.Errorf("HistLog should lift faint values, got %f", v)
	}
}
