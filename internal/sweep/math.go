package sweep

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Range is the spread of one metric across a sweep.
type Range struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
}

// Summary aggregates a sweep. Frames and ScanTime only cover exposures
// where at least one frame fits.
type Summary struct {
	Points     int    `json:"points"`
	Degenerate int    `json:"degenerate"`
	MaxSpeed   Range  `json:"max_speed"`
	Frames     Range  `json:"frames"`
	ScanTime   Range  `json:"scan_time"`
	FixedBlur  *Range `json:"fixed_blur_px,omitempty"`
	// BestExposure maximises frame count; ties go to the shorter exposure.
	BestExposure float64 `json:"best_exposure"`
}

// MeanStddev calculates the mean and sample standard deviation of a slice.
// Returns (0, 0) for empty slices.
func MeanStddev(xs []float64) (mean float64, stddev float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

func rangeOf(xs []float64) Range {
	if len(xs) == 0 {
		return Range{}
	}
	mean, sd := MeanStddev(xs)
	return Range{Min: floats.Min(xs), Max: floats.Max(xs), Mean: mean, Stddev: sd}
}

// Summarize computes the per-metric ranges of a sweep.
func Summarize(points []Point) Summary {
	s := Summary{Points: len(points)}
	speeds := make([]float64, 0, len(points))
	var frames, scanTimes, blurs []float64
	best := -1
	for _, pt := range points {
		speeds = append(speeds, pt.MaxSpeed)
		if pt.Fixed != nil {
			blurs = append(blurs, pt.Fixed.Blur.BlurPx)
		}
		if pt.LayoutErr != "" {
			s.Degenerate++
			continue
		}
		frames = append(frames, float64(pt.Layout.Frames))
		scanTimes = append(scanTimes, pt.Layout.ScanTime)
		if pt.Layout.Frames > best || (pt.Layout.Frames == best && pt.ExposureTime < s.BestExposure) {
			best = pt.Layout.Frames
			s.BestExposure = pt.ExposureTime
		}
	}
	s.MaxSpeed = rangeOf(speeds)
	s.Frames = rangeOf(frames)
	s.ScanTime = rangeOf(scanTimes)
	if len(blurs) > 0 {
		r := rangeOf(blurs)
		s.FixedBlur = &r
	}
	return s
}
