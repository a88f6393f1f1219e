package photom

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// Outline colours, by selection and label state.
var (
	colDeselected        = color.RGBA{0xa0, 0, 0, 0xff}    // red
	colSelected          = color.RGBA{0, 0xa0, 0, 0xff}    // green
	colDeselectedLabeled = color.RGBA{0xff, 0xa5, 0, 0xff} // orange
	colSelectedLabeled   = color.RGBA{0, 0x40, 0xff, 0xff} // blue
)

func starColor(s CanonicalStar) color.Color {
	switch {
	case s.Selected && s.Label != nil:
		return colSelectedLabeled
	case s.Selected:
		return colSelected
	case s.Label != nil:
		return colDeselectedLabeled
	}
	return colDeselected
}

// Overlay draws an ellipse around each star, sized 1.5x the photometry
// aperture and coloured by its state, with the star's index next to it.
func Overlay(base image.Image, stars Stars, radius float64) image.Image {
	dc := gg.NewContextForImage(base)
	dc.SetLineWidth(1)

	for _, s := range stars {
		r := 1.5 * radius
		dc.SetColor(starColor(s))
		dc.DrawEllipse(s.X, s.Y, r, r)
		dc.Stroke()
		dc.DrawString(fmt.Sprintf("%d", s.Index), s.X+r+2, s.Y)
	}

	return dc.Image()
}

// WriteOverlay renders the master preview with the star overlay into
// a PNG file.
func WriteOverlay(pi PreviewImage, tonemapper string, stars Stars, radius float64, filename string) error {
	base, err := pi.Tonemap(tonemapper)
	if err != nil {
		return err
	}
	return WritePNG(Overlay(base, stars, radius), filename)
}
