// Package sweep evaluates the fly-scan envelope over a range of exposure
// times and writes the results as CSV. It covers parsing of range
// specifications, parallel evaluation, summary statistics and output.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// maxValues bounds the length of a generated range.
const maxValues = 10000

// RangeSpec defines a floating-point parameter range for sweeping.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
// Returns an error if the format is invalid or values cannot be parsed.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}

	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	step, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}

	if step <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %f", step)
	}

	return RangeSpec{Min: min, Max: max, Step: step}, nil
}

// GenerateRange returns evenly spaced values from min to max (inclusive)
// stepping by step. Returns nil if min > max or the range would exceed
// maxValues entries.
//
// Values are computed as min + i*step rather than by accumulation, so
// millisecond exposure grids come out exact to the last few ulps.
func GenerateRange(min, max, step float64) []float64 {
	if !(step > 0) || min > max {
		return nil
	}
	n := math.Floor((max-min)/step+1e-9) + 1
	if n > maxValues || n < 1 {
		return nil
	}
	count := int(n)
	if count == 1 {
		return []float64{min}
	}
	return floats.Span(make([]float64, count), min, min+float64(count-1)*step)
}

// ParseParamList parses a comma-separated list of floats or a range specification.
// If the string contains a colon, it is treated as "min:max:step" range spec.
// Otherwise, it is parsed as comma-separated values.
func ParseParamList(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}

	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		values := GenerateRange(spec.Min, spec.Max, spec.Step)
		if values == nil {
			return nil, fmt.Errorf("range %q is empty or exceeds %d values", s, maxValues)
		}
		return values, nil
	}

	return ParseCSVFloat64s(s)
}

// ParseCSVFloat64s parses a comma-separated list of float64 values.
// Returns nil, nil for empty input strings.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
