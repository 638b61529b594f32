package flyscan

import (
	"fmt"
	"math"
)

// QuantizationTolerance is the largest distance from an integer count that
// is still treated as an exact encoder step.
const QuantizationTolerance = 1e-4

// Quantize snaps the requested rotation step to the nearest whole number of
// encoder counts and recomputes the stop angle. The returned notice is nil
// when the step was already integral.
func Quantize(plan RotationPlan, enc EncoderSpec) (QuantizedStep, *Notice, error) {
	if !(enc.CountsPerRotation > 0) {
		return QuantizedStep{}, nil, invalidf("counts_per_rotation must be positive, got %g", enc.CountsPerRotation)
	}
	if plan.NumAngles <= 0 {
		return QuantizedStep{}, nil, invalidf("num_angles must be positive, got %d", plan.NumAngles)
	}
	if math.IsNaN(plan.Step) || math.IsInf(plan.Step, 0) {
		return QuantizedStep{}, nil, invalidf("rotation_step must be finite, got %g", plan.Step)
	}

	cpd := enc.CountsPerDegree()
	raw := plan.Step * cpd
	// math.Round rounds half away from zero.
	rounded := math.Round(raw)
	deviation := math.Abs(raw - rounded)

	q := QuantizedStep{
		RequestedStep: plan.Step,
		ActualStep:    plan.Step,
		RequestedStop: plan.RequestedStop(),
		RawCounts:     raw,
		Counts:        rounded,
		Deviation:     deviation,
	}

	var notice *Notice
	if deviation > QuantizationTolerance {
		q.WasAdjusted = true
		q.ActualStep = rounded / cpd
		notice = &Notice{
			Kind: NoticeEncoderQuantization,
			Message: fmt.Sprintf("requested step %.7f° is %.4f encoder counts, using %d counts: step %.7f°, stop %.7f° instead of %.7f°",
				plan.Step, raw, int64(rounded), q.ActualStep, plan.Start+float64(plan.NumAngles)*q.ActualStep, q.RequestedStop),
			Value: raw,
			Limit: rounded,
		}
	}
	q.ActualStop = plan.Start + float64(plan.NumAngles)*q.ActualStep
	return q, notice, nil
}
