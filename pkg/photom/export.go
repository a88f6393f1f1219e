package photom

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Filenames carry the creation time in this layout; no colons, so they
// are valid everywhere.
const FileTimestampLayout = "2006-01-02T15-04-05"

func TableFilename(shortBand, longBand string, t time.Time) string {
	return fmt.Sprintf("colour_mag_diagram_%s-%s_%s.dat", shortBand, longBand, t.Format(FileTimestampLayout))
}

func tableHeader(shortBand, longBand string) string {
	return fmt.Sprintf("#ID\tx[px]\ty[px]\tflux_%s[ADU]\tflux_%s[ADU]\t%s_mag\t%s_mag",
		shortBand, longBand, shortBand, longBand)
}

// WriteTable writes the selected stars of the diagram as a tab
// separated table. Undefined magnitudes are written as NaN.
func WriteTable(w io.Writer, d Diagram) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, tableHeader(d.ShortBand, d.LongBand))
	for _, r := range d.Rows {
		fmt.Fprintf(bw, "%03d\t%5.1f\t%5.1f\t%10.4f\t%10.4f\t%8.4f\t%8.4f\n",
			r.Index, r.X, r.Y, r.FluxShort, r.FluxLong, r.MagShort, r.MagLong)
	}
	return bw.Flush()
}

// ExportTable writes the table into dir, named after the bands and the
// time. The file appears complete or not at all.
func ExportTable(dir string, d Diagram, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	filename := filepath.Join(dir, TableFilename(d.ShortBand, d.LongBand, now))
	tmp, err := os.CreateTemp(dir, ".colour_mag_diagram-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteTable(tmp, d); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", filename, err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return "", fmt.Errorf("rename to %s: %w", filename, err)
	}

	Log.Info().Str("file", filename).Int("stars", len(d.Rows)).Msg("diagram table written")
	return filename, nil
}

// A Table is an exported diagram table read back in.
type Table struct {
	ShortBand string
	LongBand  string
	Rows      []DiagramRow
}

// ParseTable reads a table written by WriteTable. Colour indices are
// not stored in the file; they are recomputed without reddening.
func ParseTable(r io.Reader) (Table, error) {
	t := Table{}
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return t, err
		}
		return t, fmt.Errorf("table: empty input")
	}
	header := sc.Text()
	cols := strings.Split(header, "\t")
	if len(cols) != 7 || cols[0] != "#ID" {
		return t, fmt.Errorf("table: unrecognized header %q", header)
	}
	t.ShortBand = strings.TrimSuffix(cols[5], "_mag")
	t.LongBand = strings.TrimSuffix(cols[6], "_mag")
	if header != tableHeader(t.ShortBand, t.LongBand) {
		return t, fmt.Errorf("table: unrecognized header %q", header)
	}

	line := 1
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 7 {
			return t, fmt.Errorf("table line %d: %d fields, want 7", line, len(fields))
		}

		idx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return t, fmt.Errorf("table line %d: id: %w", line, err)
		}
		vals := make([]float64, 6)
		for i := range vals {
			if vals[i], err = strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64); err != nil {
				return t, fmt.Errorf("table line %d, field %d: %w", line, i+2, err)
			}
		}

		ci := ColourIndex(vals[4], vals[5])
		t.Rows = append(t.Rows, DiagramRow{
			Index:        idx,
			X:            vals[0],
			Y:            vals[1],
			FluxShort:    vals[2],
			FluxLong:     vals[3],
			MagShort:     vals[4],
			MagLong:      vals[5],
			ColourIndex:  ci,
			ColourIndex0: ci,
		})
	}

	return t, sc.Err()
}
