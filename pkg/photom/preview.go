package photom

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/mdouchement/hdr/tmo"

	"github.com/abworrall/cmdphot/pkg/emath"
)

var (
	Tonemappers = []string{"histlog", "drago03", "linear"}
)

func ListTonemappers() string {
	return fmt.Sprintf("%v", Tonemappers)
}

// A PreviewImage presents a grid, background subtracted and clipped at
// zero, as a gray HDR image. Implements hdr.Image.
type PreviewImage struct {
	emath.FloatGrid
}

// NewPreviewImage subtracts the clipped median and clamps negatives,
// which is how masters are shown for star picking.
func NewPreviewImage(fg emath.FloatGrid) PreviewImage {
	bg := fg.AddConst(-fg.ClippedStats().Median)
	return PreviewImage{bg.ClampBelow(0)}
}

// Implement image.Image
func (pi PreviewImage) ColorModel() color.Model { return hdrcolor.RGBModel }
func (pi PreviewImage) Bounds() image.Rectangle { return pi.FloatGrid.Bounds() }
func (pi PreviewImage) At(x, y int) color.Color { return pi.HDRAt(x, y) }

// Implement hdr.Image
func (pi PreviewImage) HDRAt(x, y int) hdrcolor.Color {
	v := pi.Get(x, y)
	return hdrcolor.RGB{R: v, G: v, B: v}
}
func (pi PreviewImage) Size() int { return pi.Dx() * pi.Dy() }

var _ hdr.Image = PreviewImage{}

// WriteToHDR outputs a Radiance HDR image, for HDR-aware viewers.
func (pi PreviewImage) WriteToHDR(filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("WriteToHDR, open+w '%s': %w", filename, err)
	}
	defer writer.Close()

	if err := rgbe.Encode(writer, pi); err != nil {
		return fmt.Errorf("WriteToHDR, encoding RGBE file: %w", err)
	}
	return nil
}

// HistLogImage applies the log display stretch and returns a 16-bit
// gray image.
func (pi PreviewImage) HistLogImage() image.Image {
	stretched := pi.HistLog(emath.DefaultHistLogScaling, emath.DefaultHistLogBits)
	img := image.NewGray16(pi.Bounds())
	for y := 0; y < pi.Dy(); y++ {
		for x := 0; x < pi.Dx(); x++ {
			v := math.Min(math.Max(stretched.Get(x, y), 0), 0xFFFF)
			img.SetGray16(x, y, color.Gray16{uint16(v)})
		}
	}
	return img
}

// Tonemap renders the preview down to a displayable image.
func (pi PreviewImage) Tonemap(name string) (image.Image, error) {
	switch name {
	case "histlog", "":
		return pi.HistLogImage(), nil

	case "drago03":
		op := tmo.NewDefaultDrago03(pi)
		op.Bias = 0.85 // Stars are point-like; keep the faint ones visible
		return op.Perform(), nil

	case "linear":
		return tmo.NewLinear(pi).Perform(), nil
	}

	return nil, fmt.Errorf("tonemapper %q not recognized, wanted %s", name, ListTonemappers())
}

func WritePNG(img image.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %w", filename, err)
	}
	defer writer.Close()
	return png.Encode(writer, img)
}
