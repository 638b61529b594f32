package flyscan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/flyscan/internal/monitoring"
)

func baseRequest() Request {
	return Request{
		Geometry:  detector2048,
		Tolerance: BlurTolerance{MaxBlurPx: 3},
		Exposure: ExposureConfig{
			ExposureTime: 0.1,
			ReadoutTime:  0.00618,
			MarginFactor: 1.01,
			MinIncrement: 0.001,
		},
		Rotation:       RotationPlan{Start: 0, Step: 0.12, NumAngles: 1500},
		Encoder:        EncoderSpec{CountsPerRotation: 1_000_000},
		NyquistLimitPx: 1,
	}
}

func TestCompute(t *testing.T) {
	plan, err := Compute(baseRequest())
	require.NoError(t, err)

	assert.InDelta(t, 0.101, plan.FrameTime, 1e-12)
	assert.True(t, plan.Step.WasAdjusted)
	assert.InDelta(t, plan.Step.ActualStep/0.101, plan.Velocity, 1e-12)
	step, err := MaxAngularStep(BlurTolerance{MaxBlurPx: 3}, DetectorGeometry{PixelCount: 2048})
	require.NoError(t, err)
	assert.InDelta(t, step/0.1, plan.MaxSpeed, 1e-12)
	assert.InDelta(t, 1.67858789, plan.MaxSpeed, 1e-8)
	assert.Less(t, plan.Velocity, plan.MaxSpeed)

	assert.True(t, plan.HasNotice(NoticeEncoderQuantization))
	assert.False(t, plan.HasNotice(NoticeBlurBudgetExceeded))
	// 0.119° per 0.1 s exposure blurs about 2.1 px at the detector edge.
	assert.InDelta(t, 2.12, plan.Blur.BlurPx, 0.01)
	assert.False(t, plan.Blur.WithinLimit)
	assert.True(t, plan.HasNotice(NoticeBlurAboveNyquist))
}

func TestCompute_BlurBudgetExceeded(t *testing.T) {
	req := baseRequest()
	req.Rotation.Step = 0.36
	req.Encoder.CountsPerRotation = 36000
	req.Tolerance.MaxBlurPx = 1

	plan, err := Compute(req)
	require.NoError(t, err)
	assert.False(t, plan.Step.WasAdjusted)
	assert.True(t, plan.HasNotice(NoticeBlurBudgetExceeded))
	assert.Greater(t, plan.Velocity, plan.MaxSpeed)
}

func TestCompute_ZeroExposureSkipsBudget(t *testing.T) {
	req := baseRequest()
	req.Exposure.ExposureTime = 0
	req.Exposure.ReadoutTime = 0.0625

	plan, err := Compute(req)
	require.NoError(t, err)
	assert.InDelta(t, 0.0635, plan.FrameTime, 1e-12)
	assert.Zero(t, plan.MaxSpeed)
	assert.False(t, plan.HasNotice(NoticeBlurBudgetExceeded))
	assert.Zero(t, plan.Blur.BlurPx)
}

func TestCompute_FatalErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"blur beyond diameter", func(r *Request) { r.Tolerance.MaxBlurPx = 2.1 * 1024 }, ErrGeometryDomain},
		{"step below half a count", func(r *Request) { r.Rotation.Step = 0.3; r.Encoder.CountsPerRotation = 360 }, ErrDegenerateSchedule},
		{"no readout", func(r *Request) { r.Exposure.ReadoutTime = 0 }, ErrInvalidParameter},
		{"no encoder", func(r *Request) { r.Encoder.CountsPerRotation = 0 }, ErrInvalidParameter},
		{"no nyquist limit", func(r *Request) { r.NyquistLimitPx = 0 }, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, err := Compute(req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

type fakeEncoder struct {
	cpr   float64
	err   error
	calls int
}

func (f *fakeEncoder) CountsPerRotation(context.Context) (float64, error) {
	f.calls++
	return f.cpr, f.err
}

type fakeReadout map[string]Readout

var errUnknownCamera = errors.New("unknown camera")

func (f fakeReadout) ReadoutTime(_ context.Context, model, pixelFormat string) (Readout, error) {
	r, ok := f[model+"/"+pixelFormat]
	if !ok {
		return Readout{}, errUnknownCamera
	}
	return r, nil
}

type fakeFrameRate float64

func (f fakeFrameRate) FrameRate(context.Context) (float64, error) { return float64(f), nil }

func TestPlanner_ResolvesCollaborators(t *testing.T) {
	in := Input{Request: baseRequest(), CameraModel: "Oryx", PixelFormat: "Mono8"}
	in.Encoder.CountsPerRotation = 0
	in.Exposure.ReadoutTime = 0
	in.Exposure.MarginFactor = 0

	enc := &fakeEncoder{cpr: 36000}
	p := &Planner{
		Encoder: enc,
		Readout: fakeReadout{"Oryx/Mono8": {Time: 0.00618, Margin: 1.05}},
	}

	var lines []string
	restore := monitoring.Capture(&lines)
	defer restore()

	req, plan, err := p.Plan(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 1, enc.calls)
	assert.Equal(t, 36000.0, req.Encoder.CountsPerRotation)
	assert.Equal(t, 0.00618, req.Exposure.ReadoutTime)
	assert.Equal(t, 1.05, req.Exposure.MarginFactor)
	assert.InDelta(t, 0.105, plan.FrameTime, 1e-12)

	var warned bool
	for _, l := range lines {
		if strings.HasPrefix(l, "WARNING: ") {
			warned = true
		}
	}
	assert.True(t, warned, "expected notices to be logged, got %q", lines)
}

func TestPlanner_ExplicitValuesWin(t *testing.T) {
	enc := &fakeEncoder{cpr: 1}
	p := &Planner{Encoder: enc, FrameRate: fakeFrameRate(1)}

	restore := monitoring.Capture(new([]string))
	defer restore()

	req, _, err := p.Plan(context.Background(), Input{Request: baseRequest()})
	require.NoError(t, err)
	assert.Zero(t, enc.calls)
	assert.Equal(t, 0.00618, req.Exposure.ReadoutTime)
}

func TestPlanner_FrameRateFallback(t *testing.T) {
	in := Input{Request: baseRequest()}
	in.Exposure.ReadoutTime = 0

	p := &Planner{FrameRate: fakeFrameRate(16)}
	req, err := p.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0.0625, req.Exposure.ReadoutTime)

	// An unset margin falls back to 1 rather than failing FrameTime.
	in.Exposure.MarginFactor = 0
	req, _, err = p.Plan(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1.0, req.Exposure.MarginFactor)
}

func TestPlanner_NamedCameraNeedsTable(t *testing.T) {
	in := Input{Request: baseRequest(), CameraModel: "Oryx", PixelFormat: "Mono8"}
	in.Exposure.ReadoutTime = 0
	in.Exposure.MarginFactor = 0

	var fps countingFrameRate
	p := &Planner{FrameRate: &fps}
	_, err := p.ResolveReadout(context.Background(), in)
	assert.ErrorIs(t, err, ErrConfigurationLookup)
	assert.Contains(t, err.Error(), "Oryx")
	assert.Zero(t, fps.calls, "frame rate must not stand in for a named camera")
}

type countingFrameRate struct{ calls int }

func (f *countingFrameRate) FrameRate(context.Context) (float64, error) {
	f.calls++
	return 16, nil
}

func TestPlanner_Errors(t *testing.T) {
	in := Input{Request: baseRequest(), CameraModel: "Unknown", PixelFormat: "Mono8"}
	in.Exposure.ReadoutTime = 0

	p := &Planner{Readout: fakeReadout{}}
	_, _, err := p.Plan(context.Background(), in)
	assert.ErrorIs(t, err, errUnknownCamera)

	in = Input{Request: baseRequest()}
	in.Encoder.CountsPerRotation = 0
	_, err = (&Planner{}).Resolve(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	encErr := errors.New("controller offline")
	_, err = (&Planner{Encoder: &fakeEncoder{err: encErr}}).Resolve(context.Background(), in)
	assert.ErrorIs(t, err, encErr)

	in = Input{Request: baseRequest()}
	in.Exposure.ReadoutTime = 0
	_, err = (&Planner{}).Resolve(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
