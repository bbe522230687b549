package driver

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

type reportRow struct {
	Slice          int     `csv:"slice"`
	Status         string  `csv:"status"`
	ErrorKind      string  `csv:"error_kind"`
	ROIPixels      int     `csv:"roi_pixels"`
	Iterations     int     `csv:"iterations"`
	Regularized    int     `csv:"regularized"`
	ZeroedPixels   int     `csv:"zeroed_pixels"`
	FinalEnergy    float64 `csv:"final_energy"`
	ClassConstants string  `csv:"class_constants"`
	Error          string  `csv:"error"`
}

func (r *Report) rows() []*reportRow {
	rows := make([]*reportRow, 0, len(r.Slices))
	for _, s := range r.Slices {
		row := &reportRow{
			Slice:        s.Index,
			Status:       "ok",
			ROIPixels:    s.ROIPixels,
			Iterations:   len(s.Energy),
			Regularized:  s.Regularized,
			ZeroedPixels: s.ZeroedPixels,
		}
		if len(s.Energy) > 0 {
			row.FinalEnergy = s.Energy[len(s.Energy)-1]
		}
		cs := make([]string, len(s.Constants))
		for i, c := range s.Constants {
			cs[i] = strconv.FormatFloat(c, 'g', 6, 64)
		}
		row.ClassConstants = strings.Join(cs, ";")

		if s.Err != nil {
			row.Status = "failed"
			row.ErrorKind = string(s.Err.Kind)
			row.Error = s.Err.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes one row per slice to w
func (r *Report) WriteCSV(w io.Writer) error {
	return gocsv.Marshal(r.rows(), w)
}

// SaveCSV writes the report to path
func (r *Report) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if err := r.WriteCSV(f); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
