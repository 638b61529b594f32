package units

import "math"

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// NormalizeDegrees wraps an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	// -0 and values that round up to 360 after the addition above
	if d == 0 || d >= 360 {
		return 0
	}
	return d
}

// Milliseconds converts seconds to milliseconds.
func Milliseconds(sec float64) float64 {
	return sec * 1000
}

// Seconds converts milliseconds to seconds.
func Seconds(ms float64) float64 {
	return ms / 1000
}
