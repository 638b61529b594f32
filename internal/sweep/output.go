package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVWriter writes sweep points as CSV rows.
type CSVWriter struct {
	w     *csv.Writer
	fixed bool
}

// NewCSVWriter creates a CSVWriter. Fixed-step columns are included when
// fixed is set.
func NewCSVWriter(w io.Writer, fixed bool) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), fixed: fixed}
}

// FormatHeaders returns the CSV header column names.
func FormatHeaders(fixed bool) []string {
	header := []string{
		"exposure_time", "max_speed_deg_s", "exposure_arc_deg", "readout_arc_deg",
		"step_deg", "frame_period", "frames", "scan_time", "note",
	}
	if fixed {
		header = append(header, "fixed_motor_speed_deg_s", "fixed_projections", "fixed_scan_time", "fixed_blur_px", "fixed_within_nyquist")
	}
	return header
}

// WriteHeader writes the header row.
func (c *CSVWriter) WriteHeader() error {
	return c.w.Write(FormatHeaders(c.fixed))
}

// WriteRow writes one sweep point.
func (c *CSVWriter) WriteRow(pt Point) error {
	l := pt.Layout
	row := []string{
		fmt.Sprintf("%.6f", pt.ExposureTime),
		fmt.Sprintf("%.6f", pt.MaxSpeed),
		fmt.Sprintf("%.6f", l.ExposureArcDeg),
		fmt.Sprintf("%.6f", l.ReadoutArcDeg),
		fmt.Sprintf("%.6f", l.StepDeg),
		fmt.Sprintf("%.6f", l.FramePeriod),
		strconv.Itoa(l.Frames),
		fmt.Sprintf("%.3f", l.ScanTime),
		pt.LayoutErr,
	}
	if c.fixed {
		if f := pt.Fixed; f != nil {
			row = append(row,
				fmt.Sprintf("%.6f", f.MotorSpeed),
				strconv.Itoa(f.Projections),
				fmt.Sprintf("%.3f", f.ScanTime),
				fmt.Sprintf("%.4f", f.Blur.BlurPx),
				strconv.FormatBool(f.Blur.WithinLimit),
			)
		} else {
			row = append(row, "", "", "", "", "")
		}
	}
	return c.w.Write(row)
}

// WriteAll writes the header and every point, then flushes.
func (c *CSVWriter) WriteAll(points []Point) error {
	if err := c.WriteHeader(); err != nil {
		return err
	}
	for _, pt := range points {
		if err := c.WriteRow(pt); err != nil {
			return err
		}
	}
	return c.Flush()
}

// Flush flushes the underlying writer and reports any write error.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}
