package photom

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testDiagram() Diagram {
	return Diagram{
		ShortBand: "B",
		LongBand:  "V",
		Rows: []DiagramRow{
			{Index: 0, X: 12.5, Y: 40, FluxShort: 1234.5, FluxLong: 2345.25, MagShort: 11.25, MagLong: 10.5},
			{Index: 7, X: 80, Y: 3.5, FluxShort: -2, FluxLong: 10, MagShort: math.NaN(), MagLong: math.NaN()},
		},
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, testDiagram()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if want := "#ID\tx[px]\ty[px]\tflux_B[ADU]\tflux_V[ADU]\tB_mag\tV_mag"; lines[0] != want {
		t.Errorf("header = %q, want %q", lines[0], want)
	}
	if want := "000\t 12.5\t 40.0\t 1234.5000\t 2345.2500\t 11.2500\t 10.5000"; lines[1] != want {
		t.Errorf("row 0 = %q, want %q", lines[1], want)
	}
	if !strings.HasPrefix(lines[2], "007\t") || !strings.HasSuffix(lines[2], "NaN") {
		t.Errorf("row 1 = %q, want id 007 and NaN magnitudes", lines[2])
	}
}

func TestParseTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, testDiagram()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	tbl, err := ParseTable(&buf)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if tbl.ShortBand != "B" || tbl.LongBand != "V" {
		t.Errorf("bands = %s/%s, want B/V", tbl.ShortBand, tbl.LongBand)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(tbl.Rows))
	}

	r := tbl.Rows[0]
	if r.Index != 0 || r.X != 12.5 || r.FluxShort != 1234.5 || r.MagShort != 11.25 || r.MagLong != 10.5 {
		t.Errorf("row 0 = %+v", r)
	}
	if !almostEqual(r.ColourIndex, 0.75, 1e-12) {
		t.Errorf("row 0 colour index = %f, want 0.75", r.ColourIndex)
	}
	if tbl.Rows[1].Index != 7 || !math.IsNaN(tbl.Rows[1].MagShort) || !math.IsNaN(tbl.Rows[1].ColourIndex) {
		t.Errorf("row 1 = %+v, want NaN magnitudes", tbl.Rows[1])
	}
}

func TestParseTable_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad header", "ID\tx\ty\n"},
		{"short row", tableHeader("B", "V") + "\n001\t1.0\t2.0\n"},
		{"bad number", tableHeader("B", "V") + "\n001\t1.0\t2.0\tx\t4\t5\t6\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTable(strings.NewReader(tt.input)); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestExportTable(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 1, 21, 30, 5, 0, time.UTC)

	filename, err := ExportTable(dir, testDiagram(), now)
	if err != nil {
		t.Fatalf("ExportTable: %v", err)
	}
	if want := filepath.Join(dir, "colour_mag_diagram_B-V_2024-03-01T21-30-05.dat"); filename != want {
		t.Errorf("filename = %s, want %s", filename, want)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d files in the result dir, want 1", len(entries))
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	tbl, err := ParseTable(f)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Errorf("read back %d rows, want 2", len(tbl.Rows))
	}
}
