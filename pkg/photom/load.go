package photom

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"

	"github.com/abworrall/cmdphot/pkg/emath"
)

var frameExtensions = map[string]bool{
	".fit": true, ".fits": true, ".fts": true,
	".tif": true, ".tiff": true,
}

func isFrameFile(filename string) bool {
	return frameExtensions[strings.ToLower(filepath.Ext(filename))]
}

// FindFrameFiles expands a path into the sorted list of frame files it
// names. A directory yields the frame files directly inside it; a path
// with glob characters is expanded; a plain file is returned as is. An
// empty path, or one matching nothing, yields an empty list.
func FindFrameFiles(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	files := []string{}

	if strings.ContainsAny(path, "*?[") {
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", path, err)
		}
		for _, m := range matches {
			if isFrameFile(m) {
				files = append(files, m)
			}
		}
		sort.Strings(files)
		return files, nil
	}

	item, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return nil, nil

	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", path, err)

	case item.IsDir():
		contents, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("readdir %s: %w", path, err)
		}
		for _, content := range contents {
			if !content.IsDir() && isFrameFile(content.Name()) {
				files = append(files, filepath.Join(path, content.Name()))
			}
		}

	default:
		files = append(files, path)
	}

	sort.Strings(files)
	return files, nil
}

// LoadFrameSet loads every frame named by `path` into a FrameSet for
// the band. All frames must have the same dimensions.
func LoadFrameSet(band, path string) (FrameSet, error) {
	files, err := FindFrameFiles(path)
	if err != nil {
		return FrameSet{Band: band}, err
	}
	return LoadFrames(band, files)
}

func LoadFrames(band string, files []string) (FrameSet, error) {
	fs := FrameSet{Band: band}
	if len(files) == 0 {
		return fs, ErrNoFrames
	}

	for _, filename := range files {
		f, err := LoadFrame(filename)
		if err != nil {
			return fs, err
		}
		fs.Frames = append(fs.Frames, f)
	}

	if err := CheckShapes(fs.Grids()...); err != nil {
		return fs, fmt.Errorf("band %s: %w", band, err)
	}

	Log.Debug().Str("band", band).Int("frames", fs.Len()).Msgf("loaded %s", fs)
	return fs, nil
}

func LoadFrame(filename string) (Frame, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		f, err := loadTIFF(filename)
		if err != nil {
			return f, fmt.Errorf("loading %s as TIFF failed: %w", filename, err)
		}
		return f, nil

	case ".fit", ".fits", ".fts":
		f, err := loadFITS(filename)
		if err != nil {
			return f, fmt.Errorf("loading %s as FITS failed: %w", filename, err)
		}
		return f, nil
	}

	return Frame{}, fmt.Errorf("load %s: not a FITS or TIFF file", filename)
}

func loadFITS(filename string) (Frame, error) {
	fr := Frame{LoadFilename: filename}

	r, err := os.Open(filename)
	if err != nil {
		return fr, fmt.Errorf("open+r '%s': %w", filename, err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return fr, fmt.Errorf("fits open: %w", err)
	}
	defer f.Close()

	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return fr, fmt.Errorf("primary HDU is not an image")
	}

	hdr := img.Header()
	fr.Header = headerFromFits(hdr)

	axes := hdr.Axes()
	if len(axes) < 2 {
		return fr, fmt.Errorf("primary HDU has %d axes, want 2", len(axes))
	}
	for _, n := range axes[2:] {
		if n != 1 {
			return fr, fmt.Errorf("primary HDU has shape %v, want a single 2D plane", axes)
		}
	}

	bzero, bscale := 0.0, 1.0
	if v, ok := fr.Header.Float("BZERO"); ok {
		bzero = v
	}
	if v, ok := fr.Header.Float("BSCALE"); ok {
		bscale = v
	}

	values, err := decodeFitsData(img.Raw(), hdr.Bitpix(), axes[0]*axes[1], bzero, bscale)
	if err != nil {
		return fr, err
	}

	fg, err := emath.NewFloatGridFromValues(axes[0], axes[1], values)
	if err != nil {
		return fr, err
	}
	fr.FloatGrid = fg

	return fr, nil
}

// decodeFitsData turns the big-endian data block into physical values,
// physical = bzero + bscale*stored.
func decodeFitsData(raw []byte, bitpix, n int, bzero, bscale float64) ([]float64, error) {
	width := bitpix / 8
	if width < 0 {
		width = -width
	}
	if width == 0 || len(raw) < n*width {
		return nil, fmt.Errorf("data block has %d bytes, want %d for %d values at BITPIX=%d", len(raw), n*width, n, bitpix)
	}

	be := binary.BigEndian
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		b := raw[i*width : (i+1)*width]
		var v float64
		switch bitpix {
		case 8:
			v = float64(b[0])
		case 16:
			v = float64(int16(be.Uint16(b)))
		case 32:
			v = float64(int32(be.Uint32(b)))
		case 64:
			v = float64(int64(be.Uint64(b)))
		case -32:
			v = float64(math.Float32frombits(be.Uint32(b)))
		case -64:
			v = math.Float64frombits(be.Uint64(b))
		default:
			return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
		}
		values[i] = bzero + bscale*v
	}

	return values, nil
}

func loadTIFF(filename string) (Frame, error) {
	fr := Frame{LoadFilename: filename}

	// EXIF is optional here; plenty of astro TIFFs carry none.
	if reader, err := os.Open(filename); err != nil {
		return fr, fmt.Errorf("open+r exif '%s': %w", filename, err)
	} else {
		if ex, err := exif.Decode(reader); err != nil {
			Log.Debug().Str("file", filename).Err(err).Msg("no usable EXIF")
		} else {
			fr.Header = exifCards(ex)
		}
		reader.Close()
	}

	// Re-open the file, now for the image data
	reader, err := os.Open(filename)
	if err != nil {
		return fr, fmt.Errorf("open+r img '%s': %w", filename, err)
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return fr, fmt.Errorf("tiff decode: %w", err)
	}
	fr.FloatGrid = gridFromImage(img)

	return fr, nil
}

// gridFromImage converts an image to a grid of 16-bit gray levels;
// colour images are reduced to luminance.
func gridFromImage(img image.Image) emath.FloatGrid {
	b := img.Bounds()
	fg := emath.NewFloatGrid(b.Dx(), b.Dy())

	if gray, ok := img.(*image.Gray16); ok {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				fg.Set(x, y, float64(gray.Gray16At(x+b.Min.X, y+b.Min.Y).Y))
			}
		}
		return fg
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(x+b.Min.X, y+b.Min.Y).RGBA() // channel values in range [0, 0xFFFF]
			gray := float64(r)*0.2989 + float64(g)*0.5870 + float64(bl)*0.1140
			if gray > 0xFFFF {
				gray = 0xFFFF
			}
			fg.Set(x, y, gray)
		}
	}
	return fg
}
