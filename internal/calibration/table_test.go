package calibration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/flyscan/internal/flyscan"
)

const examplePath = "../../config/cameras.example.yaml"

func TestLoadFile_Example(t *testing.T) {
	table, err := LoadFile(examplePath)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Grasshopper3 GS3-U3-51S5M",
		"Oryx ORX-10G-310S9M",
		"Oryx ORX-10G-51S5M",
	}, table.Models())

	tests := []struct {
		model, format string
		want          flyscan.Readout
	}{
		{"Grasshopper3 GS3-U3-51S5M", "Mono8", flyscan.Readout{Time: 0.00618, Margin: 1.01}},
		{"Grasshopper3 GS3-U3-51S5M", "Mono12p", flyscan.Readout{Time: 0.0082, Margin: 1.01}},
		{"Oryx ORX-10G-51S5M", "Mono16", flyscan.Readout{Time: 0.01234, Margin: 1.05}},
		{"Oryx ORX-10G-310S9M", "Mono12Packed", flyscan.Readout{Time: 0.03, Margin: 1.2}},
	}
	for _, tt := range tests {
		got, err := table.ReadoutTime(context.Background(), tt.model, tt.format)
		require.NoError(t, err, "%s/%s", tt.model, tt.format)
		assert.InDelta(t, tt.want.Time, got.Time, 1e-12, "%s/%s", tt.model, tt.format)
		assert.Equal(t, tt.want.Margin, got.Margin, "%s/%s", tt.model, tt.format)
	}
}

func TestLookup_Unknown(t *testing.T) {
	table, err := LoadFile(examplePath)
	require.NoError(t, err)

	_, err = table.Lookup("Blackfly S", "Mono8")
	assert.ErrorIs(t, err, ErrConfigurationLookup)

	// Mono12p is only calibrated for the Grasshopper3.
	_, err = table.Lookup("Oryx ORX-10G-51S5M", "Mono12p")
	assert.ErrorIs(t, err, ErrConfigurationLookup)
	assert.Contains(t, err.Error(), "Mono12Packed")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "cameras:\n  - model: A\n    readout_ms: {Mono8: 1}\n    exposure: 2\n"},
		{"trailing document", "cameras:\n  - model: A\n    readout_ms: {Mono8: 1}\n---\ncameras: []\n"},
		{"missing model", "cameras:\n  - readout_ms: {Mono8: 1}\n"},
		{"duplicate model", "cameras:\n  - model: A\n    readout_ms: {Mono8: 1}\n  - model: A\n    readout_ms: {Mono8: 2}\n"},
		{"no readouts", "cameras:\n  - model: A\n"},
		{"zero readout", "cameras:\n  - model: A\n    readout_ms: {Mono8: 0}\n"},
		{"margin below one", "cameras:\n  - model: A\n    margin_factor: 0.5\n    readout_ms: {Mono8: 1}\n"},
		{"not yaml", "cameras: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_DefaultMargin(t *testing.T) {
	table, err := Parse([]byte("cameras:\n  - model: A\n    readout_ms: {Mono8: 5}\n"))
	require.NoError(t, err)

	r, err := table.Lookup("A", "Mono8")
	require.NoError(t, err)
	assert.Equal(t, DefaultMarginFactor, r.Margin)
	assert.InDelta(t, 0.005, r.Time, 1e-15)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile("")
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTable_DrivesPlanner(t *testing.T) {
	table, err := LoadFile(examplePath)
	require.NoError(t, err)

	in := flyscan.Input{
		Request: flyscan.Request{
			Geometry:       flyscan.DetectorGeometry{PixelCount: 2448},
			Tolerance:      flyscan.BlurTolerance{MaxBlurPx: 2},
			Exposure:       flyscan.ExposureConfig{ExposureTime: 0.001, MinIncrement: 0.001},
			Rotation:       flyscan.RotationPlan{Step: 0.12, NumAngles: 1500},
			Encoder:        flyscan.EncoderSpec{CountsPerRotation: 36000},
			NyquistLimitPx: 1,
		},
		CameraModel: "Oryx ORX-10G-310S9M",
		PixelFormat: "Mono16",
	}
	p := &flyscan.Planner{Readout: table}
	req, err := p.Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1.2, req.Exposure.MarginFactor)

	plan, err := flyscan.Compute(req)
	require.NoError(t, err)
	// 1.2 ms margined exposure is well under the 30 ms readout.
	assert.InDelta(t, 0.031, plan.FrameTime, 1e-12)

	in.PixelFormat = "Mono10"
	_, err = p.Resolve(context.Background(), in)
	assert.ErrorIs(t, err, ErrConfigurationLookup)
}
