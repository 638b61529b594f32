package flyscan

import "math"

// FrameLayout describes a scan run at the blur-limited maximum speed, where
// the stage keeps rotating through the detector readout.
type FrameLayout struct {
	ExposureTime float64 `json:"exposure_time"`
	ReadoutTime  float64 `json:"readout_time"`
	// Speed is the blur-limited rotation speed in degrees per second.
	Speed float64 `json:"speed"`
	// ExposureArcDeg is the rotation during one exposure; equal to the
	// maximum angular step.
	ExposureArcDeg float64 `json:"exposure_arc_deg"`
	ReadoutArcDeg  float64 `json:"readout_arc_deg"`
	// StepDeg is the angle between consecutive triggers.
	StepDeg     float64 `json:"step_deg"`
	FramePeriod float64 `json:"frame_period"`
	// Frames is the number of whole frames that fit in RangeDeg.
	Frames           int       `json:"frames"`
	RangeDeg         float64   `json:"range_deg"`
	ScanTime         float64   `json:"scan_time"`
	TriggerAnglesDeg []float64 `json:"trigger_angles_deg,omitempty"`
}

// LayoutFrames computes the trigger layout of a maximum-speed scan over
// rangeDeg. It fails with ErrDegenerateSchedule when not a single frame fits.
// Trigger angles are only listed when withTriggers is set.
func LayoutFrames(tol BlurTolerance, geom DetectorGeometry, exposure, readout, rangeDeg float64, withTriggers bool) (FrameLayout, error) {
	if !(readout >= 0) {
		return FrameLayout{}, invalidf("readout_time must not be negative, got %g", readout)
	}
	if !(rangeDeg > 0) {
		return FrameLayout{}, invalidf("angular_range must be positive, got %g", rangeDeg)
	}
	step, err := MaxAngularStep(tol, geom)
	if err != nil {
		return FrameLayout{}, err
	}
	speed, err := MaxSpeed(tol, geom, exposure)
	if err != nil {
		return FrameLayout{}, err
	}

	l := FrameLayout{
		ExposureTime:   exposure,
		ReadoutTime:    readout,
		Speed:          speed,
		ExposureArcDeg: step,
		ReadoutArcDeg:  speed * readout,
		FramePeriod:    exposure + readout,
		RangeDeg:       rangeDeg,
		ScanTime:       rangeDeg / speed,
	}
	l.StepDeg = l.ExposureArcDeg + l.ReadoutArcDeg
	l.Frames = int(math.Floor(rangeDeg / l.StepDeg))
	if l.Frames < 1 {
		return FrameLayout{}, degeneratef("no frames fit in %g°: step per frame %.4f° (reduce exposure or readout, or allow more blur)", rangeDeg, l.StepDeg)
	}
	if withTriggers {
		l.TriggerAnglesDeg = make([]float64, l.Frames)
		for i := range l.TriggerAnglesDeg {
			l.TriggerAnglesDeg[i] = float64(i) * l.StepDeg
		}
	}
	return l, nil
}

// FixedStepScan describes a conventional scan with a user-chosen angular
// step, where the stage advances one step per exposure plus readout.
type FixedStepScan struct {
	StepDeg      float64    `json:"step_deg"`
	ExposureTime float64    `json:"exposure_time"`
	MotorSpeed   float64    `json:"motor_speed"`
	Projections  int        `json:"projections"`
	ScanTime     float64    `json:"scan_time"`
	Blur         BlurResult `json:"blur"`
}

// EvaluateFixedStep computes speed, projection count, scan time and realized
// blur for a fixed-step scan over rangeDeg.
func EvaluateFixedStep(stepDeg, exposure, readout, rangeDeg float64, geom DetectorGeometry, nyquistLimitPx float64) (FixedStepScan, error) {
	if !(stepDeg > 0) {
		return FixedStepScan{}, invalidf("rotation_step must be positive, got %g", stepDeg)
	}
	if !(rangeDeg > 0) {
		return FixedStepScan{}, invalidf("angular_range must be positive, got %g", rangeDeg)
	}
	if exposure < 0 || readout < 0 || !(exposure+readout > 0) {
		return FixedStepScan{}, invalidf("exposure_time + readout_time must be positive, got %g + %g", exposure, readout)
	}
	if stepDeg > rangeDeg {
		return FixedStepScan{}, degeneratef("rotation_step %g° exceeds angular range %g°", stepDeg, rangeDeg)
	}

	speed := stepDeg / (exposure + readout)
	blur, err := ValidateBlur(speed, exposure, geom, nyquistLimitPx)
	if err != nil {
		return FixedStepScan{}, err
	}
	return FixedStepScan{
		StepDeg:      stepDeg,
		ExposureTime: exposure,
		MotorSpeed:   speed,
		Projections:  int(math.Round(rangeDeg / stepDeg)),
		ScanTime:     rangeDeg / speed,
		Blur:         blur,
	}, nil
}
