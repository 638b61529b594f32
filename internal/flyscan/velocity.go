package flyscan

import "fmt"

// PlanVelocity returns the rotation speed, in degrees per second, that
// advances one step per frame period.
func PlanVelocity(step, frameTime float64) (float64, error) {
	if !(frameTime > 0) {
		return 0, invalidf("frame_time must be positive, got %g", frameTime)
	}
	if step < 0 {
		step = -step
	}
	return step / frameTime, nil
}

// CheckBlurBudget compares velocity against the blur-limited maximum speed
// for the exposure. It returns the maximum speed and, when the velocity is
// above it, a BlurBudgetExceeded notice.
func CheckBlurBudget(velocity float64, tol BlurTolerance, geom DetectorGeometry, exposure float64) (float64, *Notice, error) {
	limit, err := MaxSpeed(tol, geom, exposure)
	if err != nil {
		return 0, nil, err
	}
	if velocity <= limit {
		return limit, nil, nil
	}
	return limit, &Notice{
		Kind: NoticeBlurBudgetExceeded,
		Message: fmt.Sprintf("velocity %.4f°/s exceeds blur-limited %.4f°/s for %.4g s exposure at %.3g px tolerance",
			velocity, limit, exposure, tol.MaxBlurPx),
		Value: velocity,
		Limit: limit,
	}, nil
}
