package flyscan

import (
	"math"

	"github.com/banshee-data/flyscan/internal/units"
)

// checkGeometry validates 0 < blur < 2r before any arcsine is taken.
func checkGeometry(tol BlurTolerance, geom DetectorGeometry) error {
	if geom.PixelCount <= 0 {
		return invalidf("pixel_count must be positive, got %d", geom.PixelCount)
	}
	diameter := 2 * geom.Radius()
	if !(tol.MaxBlurPx > 0) || tol.MaxBlurPx >= diameter {
		return fmtGeometry(tol.MaxBlurPx, diameter)
	}
	return nil
}

// MaxAngularStep returns the largest rotation, in degrees, during which a
// point at the detector edge moves by no more than tol.MaxBlurPx pixels.
func MaxAngularStep(tol BlurTolerance, geom DetectorGeometry) (float64, error) {
	if err := checkGeometry(tol, geom); err != nil {
		return 0, err
	}
	return units.Degrees(2 * math.Asin(tol.MaxBlurPx/(2*geom.Radius()))), nil
}

// MaxSpeed returns the blur-limited rotation speed in degrees per second for
// one exposure time.
func MaxSpeed(tol BlurTolerance, geom DetectorGeometry, exposure float64) (float64, error) {
	step, err := MaxAngularStep(tol, geom)
	if err != nil {
		return 0, err
	}
	if !(exposure > 0) {
		return 0, invalidf("exposure_time must be positive, got %g", exposure)
	}
	return step / exposure, nil
}

// MaxSpeeds evaluates MaxSpeed over a set of exposure times. The output has
// the same order as the input.
func MaxSpeeds(tol BlurTolerance, geom DetectorGeometry, exposures []float64) ([]float64, error) {
	step, err := MaxAngularStep(tol, geom)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(exposures))
	for i, e := range exposures {
		if !(e > 0) {
			return nil, invalidf("exposure_times[%d] must be positive, got %g", i, e)
		}
		out[i] = step / e
	}
	return out, nil
}

// BlurResult is the realized motion blur at a given velocity and exposure.
type BlurResult struct {
	// AngleDeg is the rotation swept during one exposure.
	AngleDeg       float64 `json:"angle_deg"`
	BlurPx         float64 `json:"blur_px"`
	NyquistLimitPx float64 `json:"nyquist_limit_px"`
	WithinLimit    bool    `json:"within_limit"`
}

// ValidateBlur computes the chord a detector-edge pixel travels during one
// exposure at the given velocity and compares it to nyquistLimitPx.
func ValidateBlur(velocity, exposure float64, geom DetectorGeometry, nyquistLimitPx float64) (BlurResult, error) {
	if geom.PixelCount <= 0 {
		return BlurResult{}, invalidf("pixel_count must be positive, got %d", geom.PixelCount)
	}
	if exposure < 0 {
		return BlurResult{}, invalidf("exposure_time must not be negative, got %g", exposure)
	}
	if !(nyquistLimitPx > 0) {
		return BlurResult{}, invalidf("nyquist_limit_px must be positive, got %g", nyquistLimitPx)
	}
	angle := math.Abs(velocity) * exposure
	blur := 2 * geom.Radius() * math.Sin(units.Radians(angle)/2)
	return BlurResult{
		AngleDeg:       angle,
		BlurPx:         blur,
		NyquistLimitPx: nyquistLimitPx,
		WithinLimit:    blur <= nyquistLimitPx,
	}, nil
}
