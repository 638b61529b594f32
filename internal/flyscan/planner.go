package flyscan

import (
	"context"
	"fmt"

	"github.com/banshee-data/flyscan/internal/monitoring"
)

// Request is the full input of a planning call. Every value is explicit;
// nothing here falls back to a process-wide default.
type Request struct {
	Geometry       DetectorGeometry `json:"geometry"`
	Tolerance      BlurTolerance    `json:"tolerance"`
	Exposure       ExposureConfig   `json:"exposure"`
	Rotation       RotationPlan     `json:"rotation"`
	Encoder        EncoderSpec      `json:"encoder"`
	NyquistLimitPx float64          `json:"nyquist_limit_px"`
}

// Plan is the result of a planning call: the velocity setpoint plus the
// quantized step and the checks made against it.
type Plan struct {
	FrameTime float64       `json:"frame_time"`
	Step      QuantizedStep `json:"step"`
	// Velocity is the rotation speed setpoint in degrees per second.
	Velocity float64 `json:"velocity"`
	// MaxSpeed is the blur-limited speed for the exposure.
	MaxSpeed float64    `json:"max_speed"`
	Blur     BlurResult `json:"blur"`
	Notices  []Notice   `json:"notices,omitempty"`
}

// HasNotice reports whether the plan carries a notice of the given kind.
func (p Plan) HasNotice(kind NoticeKind) bool {
	for _, n := range p.Notices {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

// Compute runs the planning pipeline: frame time, encoder quantization,
// velocity, blur budget and realized blur. Fatal errors abort the call;
// advisories are collected in Plan.Notices.
func Compute(req Request) (Plan, error) {
	if err := checkGeometry(req.Tolerance, req.Geometry); err != nil {
		return Plan{}, err
	}

	frameTime, err := FrameTime(req.Exposure)
	if err != nil {
		return Plan{}, err
	}

	step, notice, err := Quantize(req.Rotation, req.Encoder)
	if err != nil {
		return Plan{}, err
	}
	if step.Counts == 0 {
		return Plan{}, degeneratef("rotation_step %g° is below half an encoder count (%g counts/°)",
			req.Rotation.Step, req.Encoder.CountsPerDegree())
	}

	plan := Plan{FrameTime: frameTime, Step: step}
	if notice != nil {
		plan.Notices = append(plan.Notices, *notice)
	}

	plan.Velocity, err = PlanVelocity(step.ActualStep, frameTime)
	if err != nil {
		return Plan{}, err
	}

	// A zero exposure has no blur budget to exceed.
	if req.Exposure.ExposureTime > 0 {
		limit, budget, err := CheckBlurBudget(plan.Velocity, req.Tolerance, req.Geometry, req.Exposure.ExposureTime)
		if err != nil {
			return Plan{}, err
		}
		plan.MaxSpeed = limit
		if budget != nil {
			plan.Notices = append(plan.Notices, *budget)
		}
	}

	plan.Blur, err = ValidateBlur(plan.Velocity, req.Exposure.ExposureTime, req.Geometry, req.NyquistLimitPx)
	if err != nil {
		return Plan{}, err
	}
	if !plan.Blur.WithinLimit {
		plan.Notices = append(plan.Notices, Notice{
			Kind:    NoticeBlurAboveNyquist,
			Message: fmt.Sprintf("realized blur %.4f px is above the %.3g px limit", plan.Blur.BlurPx, req.NyquistLimitPx),
			Value:   plan.Blur.BlurPx,
			Limit:   req.NyquistLimitPx,
		})
	}
	return plan, nil
}

// EncoderSource reports the encoder resolution of the rotary stage, for
// example by querying the motion controller.
type EncoderSource interface {
	CountsPerRotation(ctx context.Context) (float64, error)
}

// Readout is the calibrated readout time and exposure margin for one camera
// configuration.
type Readout struct {
	Time   float64 `json:"readout_time"`
	Margin float64 `json:"margin_factor"`
}

// ReadoutSource looks up the readout time for a camera model and pixel
// format. Implementations must return an error rather than a guessed value
// for unknown combinations.
type ReadoutSource interface {
	ReadoutTime(ctx context.Context, model, pixelFormat string) (Readout, error)
}

// FrameRateSource measures the live frame rate at (near) zero exposure.
type FrameRateSource interface {
	FrameRate(ctx context.Context) (float64, error)
}

// Input is a planning request whose encoder resolution and readout timing
// may be left to the Planner's collaborators. Zero values mean "ask the
// collaborator".
type Input struct {
	Request
	CameraModel string `json:"camera_model,omitempty"`
	PixelFormat string `json:"pixel_format,omitempty"`
}

// Planner resolves collaborator-supplied values and runs Compute.
// Nil collaborators are only an error when a value is actually missing.
type Planner struct {
	Encoder   EncoderSource
	Readout   ReadoutSource
	FrameRate FrameRateSource
}

// Resolve fills the encoder resolution, readout time and margin of in from
// the collaborators and returns the explicit Request.
func (p *Planner) Resolve(ctx context.Context, in Input) (Request, error) {
	req := in.Request

	if req.Encoder.CountsPerRotation == 0 {
		if p.Encoder == nil {
			return Request{}, invalidf("counts_per_rotation not set and no encoder source configured")
		}
		cpr, err := p.Encoder.CountsPerRotation(ctx)
		if err != nil {
			return Request{}, fmt.Errorf("query encoder resolution: %w", err)
		}
		req.Encoder.CountsPerRotation = cpr
	}

	exposure, err := p.ResolveReadout(ctx, in)
	if err != nil {
		return Request{}, err
	}
	req.Exposure = exposure
	return req, nil
}

// ResolveReadout fills only the readout time and margin of in. An explicit
// readout time wins. A named camera must resolve through the calibration
// table; the measured frame rate is used only when no camera is named.
func (p *Planner) ResolveReadout(ctx context.Context, in Input) (ExposureConfig, error) {
	exp := in.Exposure
	if exp.ReadoutTime != 0 {
		return exp, nil
	}

	switch {
	case in.CameraModel != "":
		if p.Readout == nil {
			return ExposureConfig{}, fmt.Errorf("%w: camera %q named but no calibration table configured",
				ErrConfigurationLookup, in.CameraModel)
		}
		r, err := p.Readout.ReadoutTime(ctx, in.CameraModel, in.PixelFormat)
		if err != nil {
			return ExposureConfig{}, err
		}
		exp.ReadoutTime = r.Time
		if exp.MarginFactor == 0 {
			exp.MarginFactor = r.Margin
		}
	case p.FrameRate != nil:
		fps, err := p.FrameRate.FrameRate(ctx)
		if err != nil {
			return ExposureConfig{}, fmt.Errorf("measure frame rate: %w", err)
		}
		readout, err := ReadoutFromFrameRate(fps)
		if err != nil {
			return ExposureConfig{}, err
		}
		monitoring.Logf("measured frame rate %.2f Hz, readout %.4f s", fps, readout)
		exp.ReadoutTime = readout
		if exp.MarginFactor == 0 {
			exp.MarginFactor = 1
		}
	default:
		return ExposureConfig{}, invalidf("readout_time not set and no readout source configured")
	}
	return exp, nil
}

// Plan resolves in and computes the plan, logging every notice.
func (p *Planner) Plan(ctx context.Context, in Input) (Request, Plan, error) {
	req, err := p.Resolve(ctx, in)
	if err != nil {
		return Request{}, Plan{}, err
	}
	plan, err := Compute(req)
	if err != nil {
		return req, Plan{}, err
	}
	for _, n := range plan.Notices {
		monitoring.Logf("WARNING: %s", n)
	}
	monitoring.Logf("frame time %.4f s, step %.7f°, velocity %.4f °/s", plan.FrameTime, plan.Step.ActualStep, plan.Velocity)
	return req, plan, nil
}
