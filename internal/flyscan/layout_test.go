package flyscan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutFrames(t *testing.T) {
	tol := BlurTolerance{MaxBlurPx: 3}
	readout := 1.0 / 16

	l, err := LayoutFrames(tol, detector2048, 0.45, readout, 180, true)
	require.NoError(t, err)

	step := 2 * math.Asin(3.0/2048) * 180 / math.Pi
	speed := step / 0.45
	assert.InDelta(t, speed, l.Speed, 1e-12)
	assert.InDelta(t, step, l.ExposureArcDeg, 1e-12)
	assert.InDelta(t, speed*readout, l.ReadoutArcDeg, 1e-12)
	assert.InDelta(t, step+speed*readout, l.StepDeg, 1e-12)
	assert.InDelta(t, 0.45+readout, l.FramePeriod, 1e-12)
	assert.InDelta(t, 180/speed, l.ScanTime, 1e-9)
	assert.Equal(t, int(math.Floor(180/l.StepDeg)), l.Frames)
	assert.Equal(t, 941, l.Frames)

	require.Len(t, l.TriggerAnglesDeg, l.Frames)
	assert.Equal(t, 0.0, l.TriggerAnglesDeg[0])
	assert.InDelta(t, float64(l.Frames-1)*l.StepDeg, l.TriggerAnglesDeg[l.Frames-1], 1e-9)
	assert.Less(t, l.TriggerAnglesDeg[l.Frames-1], 180.0)
}

func TestLayoutFrames_WithoutTriggers(t *testing.T) {
	l, err := LayoutFrames(BlurTolerance{MaxBlurPx: 3}, detector2048, 0.1, 0.0625, 180, false)
	require.NoError(t, err)
	assert.Nil(t, l.TriggerAnglesDeg)
	assert.Positive(t, l.Frames)
}

func TestLayoutFrames_NoFramesFit(t *testing.T) {
	// A tolerance close to the detector diameter sweeps almost 180° per
	// exposure; the readout arc pushes the per-frame step past the range.
	_, err := LayoutFrames(BlurTolerance{MaxBlurPx: 2047.9}, detector2048, 0.01, 0.0625, 180, true)
	assert.ErrorIs(t, err, ErrDegenerateSchedule)
}

func TestLayoutFrames_InvalidInput(t *testing.T) {
	tol := BlurTolerance{MaxBlurPx: 3}
	_, err := LayoutFrames(tol, detector2048, 0.1, 0.0625, 0, false)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = LayoutFrames(tol, detector2048, 0, 0.0625, 180, false)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = LayoutFrames(tol, detector2048, 0.1, -1, 180, false)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = LayoutFrames(BlurTolerance{MaxBlurPx: 2.1 * 1024}, detector2048, 0.1, 0.0625, 180, false)
	assert.ErrorIs(t, err, ErrGeometryDomain)
}

func TestEvaluateFixedStep(t *testing.T) {
	s, err := EvaluateFixedStep(0.12, 0.05, 0.0625, 180, detector2048, 1)
	require.NoError(t, err)

	assert.InDelta(t, 0.12/0.1125, s.MotorSpeed, 1e-12)
	assert.Equal(t, 1500, s.Projections)
	assert.InDelta(t, 168.75, s.ScanTime, 1e-9)
	assert.InDelta(t, 0.12/0.1125*0.05, s.Blur.AngleDeg, 1e-12)
	assert.True(t, s.Blur.WithinLimit)
}

func TestEvaluateFixedStep_Rejects(t *testing.T) {
	_, err := EvaluateFixedStep(0, 0.05, 0.0625, 180, detector2048, 1)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = EvaluateFixedStep(0.12, 0, 0, 180, detector2048, 1)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = EvaluateFixedStep(200, 0.05, 0.0625, 180, detector2048, 1)
	assert.ErrorIs(t, err, ErrDegenerateSchedule)
}
