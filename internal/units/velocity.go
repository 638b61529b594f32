// Package units provides shared constants, validation and conversions for
// rotation speed and angle units.
package units

import "math"

// Unit constants
const (
	DegPerSec = "deg_s"
	RadPerSec = "rad_s"
	RPM       = "rpm"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{DegPerSec, RadPerSec, RPM}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "deg_s, rad_s, rpm"
}

// ConvertVelocity converts a rotation speed from degrees per second to the target units.
// Plans are always computed in degrees per second.
func ConvertVelocity(degPerSec float64, targetUnits string) float64 {
	switch targetUnits {
	case DegPerSec:
		return degPerSec
	case RadPerSec:
		return degPerSec * math.Pi / 180
	case RPM:
		return degPerSec * 60 / 360
	default:
		return degPerSec
	}
}
