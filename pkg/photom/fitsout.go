package photom

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/abworrall/cmdphot/pkg/emath"
)

const MasterNote = "Created by cmdphot"

// A Master is a stacked frame for one band, with the header of the
// first frame that went into it.
type Master struct {
	Band    string
	NFrames int
	Header  Header
	emath.FloatGrid
}

func MasterFilename(band string, t time.Time) string {
	return fmt.Sprintf("%s_%s.fits", band, t.Format(FileTimestampLayout))
}

// EncodeFITS writes the master as a single-HDU FITS file of 64-bit
// floats. The source header is carried over, with the layout keywords
// regenerated and BZERO, SNAPSHOT, DATE and NOTE set afresh.
func (m Master) EncodeFITS(w io.Writer, now time.Time) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("fits create: %w", err)
	}

	img := fitsio.NewImage(-64, []int{m.Dx(), m.Dy()})
	defer img.Close()

	cards := m.Header.propagated("SNAPSHOT", "DATE", "NOTE")
	cards = append(cards,
		fitsio.Card{Name: "BZERO", Value: 0.0},
		fitsio.Card{Name: "SNAPSHOT", Value: m.NFrames, Comment: "frames combined"},
		fitsio.Card{Name: "DATE", Value: now.Format("2006-01-02"), Comment: "file creation date"},
		fitsio.Card{Name: "NOTE", Value: MasterNote},
	)
	if err := img.Header().Append(cards...); err != nil {
		return fmt.Errorf("fits header: %w", err)
	}

	if err := img.Write(m.Values()); err != nil {
		return fmt.Errorf("fits data: %w", err)
	}
	if err := f.Write(img); err != nil {
		return fmt.Errorf("fits write: %w", err)
	}
	return f.Close()
}

// WriteMasters writes one FITS file per master into dir. Each is
// written to a temporary file first and only renamed into place once
// all of them have been written, so either every file appears or none.
func WriteMasters(dir string, masters []Master, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmpNames := []string{}
	defer func() {
		for _, n := range tmpNames {
			os.Remove(n)
		}
	}()

	for _, m := range masters {
		tmp, err := os.CreateTemp(dir, "."+m.Band+"-*.fits.tmp")
		if err != nil {
			return nil, fmt.Errorf("create temp in %s: %w", dir, err)
		}
		tmpNames = append(tmpNames, tmp.Name())

		if err := m.EncodeFITS(tmp, now); err != nil {
			tmp.Close()
			return nil, fmt.Errorf("master %s: %w", m.Band, err)
		}
		if err := tmp.Close(); err != nil {
			return nil, fmt.Errorf("master %s: %w", m.Band, err)
		}
	}

	final := []string{}
	for i, m := range masters {
		filename := filepath.Join(dir, MasterFilename(m.Band, now))
		if err := os.Rename(tmpNames[i], filename); err != nil {
			for _, done := range final {
				os.Remove(done)
			}
			return nil, fmt.Errorf("rename to %s: %w", filename, err)
		}
		final = append(final, filename)
		Log.Info().Str("band", m.Band).Int("frames", m.NFrames).Str("file", filename).Msg("master written")
	}

	return final, nil
}
