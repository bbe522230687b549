package driver

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReportCSV(t *testing.T) {
	rep := &Report{
		Slices: []SliceResult{
			{Index: 0, ROIPixels: 120, ZeroedPixels: 7, Constants: []float64{10, 20.5}, Energy: []float64{9, 4, 3}},
			{Index: 1, Err: &SliceError{Index: 1, Kind: KindNumerical, Err: errors.New("singular")}},
		},
	}

	var buf bytes.Buffer
	if err := rep.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "slice,status,error_kind") {
		t.Errorf("Unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[0], "zeroed_pixels") {
		t.Errorf("Header is missing zeroed_pixels: %s", lines[0])
	}
	if !strings.Contains(lines[1], "ok") || !strings.Contains(lines[1], "10;20.5") || !strings.Contains(lines[1], ",7,3,") {
		t.Errorf("Unexpected first row: %s", lines[1])
	}
	if !strings.Contains(lines[2], "failed") || !strings.Contains(lines[2], "numerical") || !strings.Contains(lines[2], "singular") {
		t.Errorf("Unexpected second row: %s", lines[2])
	}
}

func TestReportSaveCSV(t *testing.T) {
	rep := &Report{Slices: []SliceResult{{Index: 0, Constants: []float64{1}}}}
	path := filepath.Join(t.TempDir(), "report.csv")

	if err := rep.SaveCSV(path); err != nil {
		t.Fatalf("SaveCSV failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	if !strings.Contains(string(data), "class_constants") {
		t.Errorf("Report is missing its header: %s", data)
	}
}
