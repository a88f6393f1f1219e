package photom

import (
	"image"
	"os"
	"path/filepath"
	"testing"
)

func TestNewPreviewImage(t *testing.T) {
	fg := constGrid(10, 10, 100)
	fg.Set(4, 4, 600)
	fg.Set(5, 5, 40)

	pi := NewPreviewImage(fg)
	if v := pi.Get(4, 4); v != 500 {
		t.Errorf("star pixel = %f, want 500", v)
	}
	if v := pi.Get(5, 5); v != 0 {
		t.Errorf("dark pixel = %f, want 0 (clamped)", v)
	}
	if pi.Size() != 100 || pi.Bounds() != image.Rect(0, 0, 10, 10) {
		t.Errorf("size %d, bounds %v", pi.Size(), pi.Bounds())
	}
}

func TestTonemap(t *testing.T) {
	sky := synthSky{W: 32, H: 24, Background: 100, Noise: 2, FWHM: 3, Stars: []synthStar{{10, 10, 5000}}}
	pi := NewPreviewImage(sky.frame(1, 0, 0))

	for _, name := range Tonemappers {
		t.Run(name, func(t *testing.T) {
			img, err := pi.Tonemap(name)
			if err != nil {
				t.Fatalf("Tonemap: %v", err)
			}
			if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
				t.Errorf("bounds = %v", img.Bounds())
			}
		})
	}

	if _, err := pi.Tonemap("fattal02"); err == nil {
		t.Errorf("expected an error for an unknown tonemapper")
	}
}

func TestWriteOverlay(t *testing.T) {
	dir := t.TempDir()
	sky := synthSky{W: 40, H: 40, Background: 100, Noise: 2, FWHM: 3, Stars: []synthStar{{20, 20, 3000}}}
	pi := NewPreviewImage(sky.frame(1, 0, 0))
	stars := Stars{{Index: 0, X: 20, Y: 20, Selected: true}}

	pngFile := filepath.Join(dir, "preview.png")
	if err := WriteOverlay(pi, "histlog", stars, 4.5, pngFile); err != nil {
		t.Fatalf("WriteOverlay: %v", err)
	}
	hdrFile := filepath.Join(dir, "preview.hdr")
	if err := pi.WriteToHDR(hdrFile); err != nil {
		t.Fatalf("WriteToHDR: %v", err)
	}

	for _, f := range []string{pngFile, hdrFile} {
		if st, err := os.Stat(f); err != nil || st.Size() == 0 {
			t.Errorf("%s: not written (%v)", f, err)
		}
	}
}
