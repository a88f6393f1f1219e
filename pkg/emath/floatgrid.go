package emath

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/floats"
)

// A FloatGrid is a grid of floats, with some operations. Values are
// stored row-major, so (x,y) lives at values[y*stride + x]; this is the
// same layout as a FITS primary array (NAXIS1 varies fastest).
//
// Operations that transform a grid return a new grid; the receiver is
// left alone.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFromValues wraps a row-major slice of w*h values. The
// slice is not copied.
func NewFloatGridFromValues(w, h int, values []float64) (FloatGrid, error) {
	if w <= 0 || h <= 0 || len(values) != w*h {
		return FloatGrid{}, fmt.Errorf("grid %dx%d needs %d values, got %d", w, h, w*h, len(values))
	}
	return FloatGrid{stride: w, values: values}, nil
}

func (g1 *FloatGrid) NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid) Set(x, y int, v float64) { fg.values[fg.stride*y+x] = v }
func (fg *FloatGrid) Get(x, y int) float64    { return fg.values[fg.stride*y+x] }
func (fg *FloatGrid) Dx() int                 { return fg.stride }
func (fg *FloatGrid) Values() []float64       { return fg.values }
func (fg *FloatGrid) Len() int                { return len(fg.values) }
func (fg *FloatGrid) IsEmpty() bool           { return len(fg.values) == 0 }

func (fg *FloatGrid) Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

func (fg *FloatGrid) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{fg.Dx(), fg.Dy()}}
}

func (fg *FloatGrid) SameShape(other FloatGrid) bool {
	return fg.Dx() == other.Dx() && fg.Dy() == other.Dy()
}

func (g1 *FloatGrid) Copy() FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return g2
}

// Sub returns g1 - g2, elementwise.
func (g1 *FloatGrid) Sub(g2 FloatGrid) FloatGrid {
	out := g1.Copy()
	floats.Sub(out.values, g2.values)
	return out
}

// Div returns g1 / g2, elementwise. Division by zero follows IEEE rules.
func (g1 *FloatGrid) Div(g2 FloatGrid) FloatGrid {
	out := g1.Copy()
	floats.Div(out.values, g2.values)
	return out
}

// Scale returns the grid multiplied by f.
func (g1 *FloatGrid) Scale(f float64) FloatGrid {
	out := g1.Copy()
	floats.Scale(f, out.values)
	return out
}

// AddConst returns the grid with c added to every value.
func (g1 *FloatGrid) AddConst(c float64) FloatGrid {
	out := g1.Copy()
	floats.AddConst(c, out.values)
	return out
}

// Shift moves the grid content by (dx,dy) pixels, keeping the grid
// size. It is the same as zero-padding on the side(s) given by the
// signs and cropping back to the original size: pixels uncovered by the
// move are zero, content pushed past an edge is lost.
func (g1 *FloatGrid) Shift(dx, dy int) FloatGrid {
	width := g1.Dx()
	height := g1.Dy()
	g2 := g1.NewFromThis()

	for y := 0; y < height; y++ {
		sy := y - dy
		if sy < 0 || sy >= height {
			continue
		}
		for x := 0; x < width; x++ {
			sx := x - dx
			if sx < 0 || sx >= width {
				continue
			}
			g2.Set(x, y, g1.Get(sx, sy))
		}
	}

	return g2
}

// Reverse returns the grid flipped along both axes.
func (g1 *FloatGrid) Reverse() FloatGrid {
	g2 := g1.NewFromThis()
	n := len(g1.values)
	for i, v := range g1.values {
		g2.values[n-1-i] = v
	}
	return g2
}

// Binarize maps values below thresh to 0, everything else to 1.
func (g1 *FloatGrid) Binarize(thresh float64) FloatGrid {
	g2 := g1.NewFromThis()
	for i, v := range g1.values {
		if v >= thresh {
			g2.values[i] = 1
		}
	}
	return g2
}

// ClampBelow returns the grid with values under min replaced by min.
func (g1 *FloatGrid) ClampBelow(min float64) FloatGrid {
	g2 := g1.Copy()
	for i, v := range g2.values {
		if v < min {
			g2.values[i] = min
		}
	}
	return g2
}

func (fg *FloatGrid) MinMax() (float64, float64) {
	if len(fg.values) == 0 {
		return 0, 0
	}
	return floats.Min(fg.values), floats.Max(fg.values)
}

func (fg *FloatGrid) Stats() string {
	min, max := fg.MinMax()
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}]", fg.Dx(), fg.Dy(), min, max)
}

// ToImg saves a simple grayscale, based on the range of values in the grid, and gamma scaling the
// gray to look normal for human vision
func (fg *FloatGrid) ToImg(title, filename string) error {
	min, max := fg.MinMax()
	if max == min {
		max = min + 1
	}

	img := image.NewRGBA64(fg.Bounds())
	for x := 0; x < fg.Dx(); x++ {
		for y := 0; y < fg.Dy(); y++ {
			lum := fg.Get(x, y)
			gray := GammaExpand_F64((lum - min) / (max - min))
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
