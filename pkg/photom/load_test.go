package photom

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"
)

func touch(t *testing.T, filename string) {
	t.Helper()
	if err := os.WriteFile(filename, []byte{}, 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func TestFindFrameFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.fits", "a.FIT", "c.tif", "notes.txt", "d.fts"} {
		touch(t, filepath.Join(dir, n))
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.fits"), 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want []string
	}{
		{"empty path", "", nil},
		{"missing", filepath.Join(dir, "nope"), nil},
		{"directory", dir, []string{"a.FIT", "b.fits", "c.tif", "d.fts"}},
		{"glob", filepath.Join(dir, "*.f*"), []string{"b.fits", "d.fts"}},
		{"single file", filepath.Join(dir, "c.tif"), []string{"c.tif"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindFrameFiles(tt.path)
			if err != nil {
				t.Fatalf("FindFrameFiles: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if filepath.Base(got[i]) != tt.want[i] {
					t.Errorf("file %d = %s, want %s", i, filepath.Base(got[i]), tt.want[i])
				}
			}
		})
	}
}

func TestLoadFrameSet(t *testing.T) {
	dir := t.TempDir()
	ok := writeFITSFrames(t, dir, "ok", constGrid(5, 4, 1), constGrid(5, 4, 2))
	mixed := writeFITSFrames(t, dir, "mixed", constGrid(5, 4, 1), constGrid(4, 5, 2))

	fs, err := LoadFrameSet("B", ok)
	if err != nil {
		t.Fatalf("LoadFrameSet: %v", err)
	}
	if fs.Len() != 2 || fs.Frames[1].Get(4, 3) != 2 {
		t.Errorf("got %s", fs)
	}
	if v, _ := fs.Header().Float("EXPTIME"); v != 30 {
		t.Errorf("EXPTIME = %v, want 30", v)
	}

	if _, err := LoadFrameSet("B", mixed); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("mixed shapes: got %v, want ErrShapeMismatch", err)
	}
	if _, err := LoadFrameSet("B", filepath.Join(dir, "nope")); !errors.Is(err, ErrNoFrames) {
		t.Errorf("no files: got %v, want ErrNoFrames", err)
	}
}

func TestLoadFrame_TIFF(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 4, 3))
	img.SetGray16(2, 1, color.Gray16{Y: 40000})

	filename := filepath.Join(t.TempDir(), "frame.tif")
	f, err := os.Create(filename)
	if err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("tiff.Encode: %v", err)
	}
	f.Close()

	fr, err := LoadFrame(filename)
	if err != nil {
		t.Fatalf("LoadFrame: %v", err)
	}
	if fr.Dx() != 4 || fr.Dy() != 3 || fr.Get(2, 1) != 40000 || fr.Get(0, 0) != 0 {
		t.Errorf("got %s", fr.Stats())
	}
}

func TestLoadFrame_Unknown(t *testing.T) {
	if _, err := LoadFrame("image.jpg"); err == nil {
		t.Errorf("expected an error for a .jpg")
	}
}

func TestDecodeFitsData(t *testing.T) {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint16(raw[0:], uint16(0x8000)) // -32768
	binary.BigEndian.PutUint16(raw[2:], uint16(10))

	got, err := decodeFitsData(raw, 16, 2, 32768, 1)
	if err != nil {
		t.Fatalf("decodeFitsData: %v", err)
	}
	if got[0] != 0 || got[1] != 32778 {
		t.Errorf("got %v, want [0 32778]", got)
	}

	if _, err := decodeFitsData(raw, 32, 2, 0, 1); err == nil {
		t.Errorf("expected an error for a short data block")
	}
	if _, err := decodeFitsData(raw, 12, 1, 0, 1); err == nil {
		t.Errorf("expected an error for BITPIX 12")
	}
}
