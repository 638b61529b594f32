package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/flyscan/internal/flyscan"
)

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.PixelCount == nil || *cfg.PixelCount != 2048 {
		t.Errorf("Expected PixelCount 2048, got %v", cfg.PixelCount)
	}
	if cfg.GetMinIncrement() != 0.001 {
		t.Errorf("GetMinIncrement() = %f, want 0.001", cfg.GetMinIncrement())
	}
	if len(cfg.ExposureTimes) == 0 {
		t.Error("Expected default exposure_times sweep")
	}

	in, err := cfg.Input()
	if err != nil {
		t.Fatalf("Input() on defaults: %v", err)
	}
	if _, err := flyscan.Compute(in.Request); err != nil {
		t.Errorf("defaults do not produce a plan: %v", err)
	}
	if spec, ok := cfg.Interlace(); !ok {
		t.Error("Expected defaults to request an interlaced schedule")
	} else if err := flyscan.ValidateInterlace(spec); err != nil {
		t.Errorf("default interlace spec invalid: %v", err)
	}
}

func TestLoadPlanConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "plan.json")

	testJSON := `{
  "pixel_count": 2560,
  "max_blur_px": 1.5,
  "exposure_time": 0.05,
  "frame_rate": 16,
  "rotation_step": 0.25,
  "num_angles": 720,
  "camera_model": "Oryx ORX-10G-51S5M",
  "pixel_format": "Mono8"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadPlanConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.PixelCount == nil || *cfg.PixelCount != 2560 {
		t.Errorf("Expected PixelCount 2560, got %v", cfg.PixelCount)
	}
	if cfg.GetReadoutTime() != 0.0625 {
		t.Errorf("GetReadoutTime() = %f, want 0.0625 from frame_rate", cfg.GetReadoutTime())
	}
	if cfg.GetCameraModel() != "Oryx ORX-10G-51S5M" {
		t.Errorf("GetCameraModel() = %q", cfg.GetCameraModel())
	}
	// The readout comes from frame_rate, so the margin is not left to a table.
	if cfg.GetMarginFactor() != DefaultMarginFactor {
		t.Errorf("GetMarginFactor() = %f, want default", cfg.GetMarginFactor())
	}
	if cfg.GetNyquistLimitPx() != DefaultNyquistLimitPx {
		t.Errorf("GetNyquistLimitPx() = %f, want default", cfg.GetNyquistLimitPx())
	}
	if cfg.GetAngularRange() != DefaultAngularRange {
		t.Errorf("GetAngularRange() = %f, want default", cfg.GetAngularRange())
	}
}

func TestLoadPlanConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := LoadPlanConfig("/nonexistent/path/to/plan.json"); err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}

	yamlPath := filepath.Join(tmpDir, "plan.yaml")
	if err := os.WriteFile(yamlPath, []byte("pixel_count: 1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPlanConfig(yamlPath); err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("Expected extension error, got %v", err)
	}

	invalidPath := filepath.Join(tmpDir, "invalid.json")
	if err := os.WriteFile(invalidPath, []byte(`{"pixel_count": "many"`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPlanConfig(invalidPath); err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}

	bigPath := filepath.Join(tmpDir, "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(bigPath, big, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPlanConfig(bigPath); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected size error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *PlanConfig
		wantErr bool
	}{
		{"empty config is valid", &PlanConfig{}, false},
		{"zero exposure allowed", &PlanConfig{ExposureTime: ptrFloat64(0)}, false},
		{"negative pixel count", &PlanConfig{PixelCount: ptrInt(-1)}, true},
		{"zero blur", &PlanConfig{MaxBlurPx: ptrFloat64(0)}, true},
		{"negative exposure", &PlanConfig{ExposureTime: ptrFloat64(-0.1)}, true},
		{"non-positive sweep exposure", &PlanConfig{ExposureTimes: []float64{0.1, 0}}, true},
		{"zero readout", &PlanConfig{ReadoutTime: ptrFloat64(0)}, true},
		{"zero frame rate", &PlanConfig{FrameRate: ptrFloat64(0)}, true},
		{"margin below one", &PlanConfig{MarginFactor: ptrFloat64(0.9)}, true},
		{"zero min increment", &PlanConfig{MinIncrement: ptrFloat64(0)}, true},
		{"zero encoder", &PlanConfig{CountsPerRotation: ptrFloat64(0)}, true},
		{"zero angles", &PlanConfig{NumAngles: ptrInt(0)}, true},
		{"zero range", &PlanConfig{AngularRange: ptrFloat64(0)}, true},
		{"loops not power of two", &PlanConfig{NumLoops: ptrInt(3)}, true},
		{"loops power of two", &PlanConfig{NumLoops: ptrInt(8)}, false},
		{"zero projections", &PlanConfig{TotalProjections: ptrInt(0)}, true},
		{"zero nyquist", &PlanConfig{NyquistLimitPx: ptrFloat64(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetMarginFactor(t *testing.T) {
	tests := []struct {
		name string
		cfg  *PlanConfig
		want float64
	}{
		{"default", &PlanConfig{}, DefaultMarginFactor},
		{"explicit", &PlanConfig{MarginFactor: ptrFloat64(1.2)}, 1.2},
		{"camera supplies margin", &PlanConfig{CameraModel: ptrString("cam")}, 0},
		{"explicit readout with camera", &PlanConfig{CameraModel: ptrString("cam"), ReadoutTime: ptrFloat64(0.01)}, DefaultMarginFactor},
		{"frame rate with camera", &PlanConfig{CameraModel: ptrString("cam"), FrameRate: ptrFloat64(16)}, DefaultMarginFactor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetMarginFactor(); got != tt.want {
				t.Errorf("GetMarginFactor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInputRequiresFields(t *testing.T) {
	full := MustLoadDefaultConfig()
	tests := []struct {
		field string
		clear func(*PlanConfig)
	}{
		{"pixel_count", func(c *PlanConfig) { c.PixelCount = nil }},
		{"max_blur_px", func(c *PlanConfig) { c.MaxBlurPx = nil }},
		{"exposure_time", func(c *PlanConfig) { c.ExposureTime = nil }},
		{"rotation_step", func(c *PlanConfig) { c.RotationStep = nil }},
		{"num_angles", func(c *PlanConfig) { c.NumAngles = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := full.Merge(nil)
			tt.clear(cfg)
			_, err := cfg.Input()
			if !errors.Is(err, flyscan.ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := MustLoadDefaultConfig()
	merged := base.Merge(&PlanConfig{
		ExposureTime: ptrFloat64(0.45),
		CameraModel:  ptrString("Grasshopper3 GS3-U3-51S5M"),
	})

	if *merged.ExposureTime != 0.45 {
		t.Errorf("ExposureTime = %v, want 0.45", *merged.ExposureTime)
	}
	if *merged.PixelCount != *base.PixelCount {
		t.Errorf("PixelCount changed by merge")
	}
	if base.CameraModel != nil {
		t.Error("Merge modified the receiver")
	}

	in, err := merged.Input()
	if err != nil {
		t.Fatal(err)
	}
	if in.CameraModel != "Grasshopper3 GS3-U3-51S5M" {
		t.Errorf("CameraModel = %q", in.CameraModel)
	}
	// The named camera drops the default readout and margin so the
	// calibration table supplies both.
	if in.Exposure.ReadoutTime != 0 || in.Exposure.MarginFactor != 0 {
		t.Errorf("readout/margin = %v/%v, want both left to the calibration table",
			in.Exposure.ReadoutTime, in.Exposure.MarginFactor)
	}
	if base.ReadoutTime == nil || base.MarginFactor == nil {
		t.Error("Merge cleared the receiver's readout or margin")
	}
}

func TestMerge_CameraKeepsExplicitReadout(t *testing.T) {
	base := MustLoadDefaultConfig()
	tests := []struct {
		name        string
		override    *PlanConfig
		wantReadout float64
		wantMargin  float64
	}{
		{
			name:        "readout in override",
			override:    &PlanConfig{CameraModel: ptrString("cam"), ReadoutTime: ptrFloat64(0.004)},
			wantReadout: 0.004,
			wantMargin:  *base.MarginFactor,
		},
		{
			name:        "frame rate in override",
			override:    &PlanConfig{CameraModel: ptrString("cam"), FrameRate: ptrFloat64(50)},
			wantReadout: 0.02,
			wantMargin:  *base.MarginFactor,
		},
		{
			name:        "margin only",
			override:    &PlanConfig{CameraModel: ptrString("cam"), MarginFactor: ptrFloat64(1.2)},
			wantReadout: 0,
			wantMargin:  1.2,
		},
		{
			name:        "no camera",
			override:    &PlanConfig{ExposureTime: ptrFloat64(0.2)},
			wantReadout: *base.ReadoutTime,
			wantMargin:  *base.MarginFactor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := base.Merge(tt.override)
			if got := merged.GetReadoutTime(); got != tt.wantReadout {
				t.Errorf("GetReadoutTime() = %v, want %v", got, tt.wantReadout)
			}
			if got := merged.GetMarginFactor(); got != tt.wantMargin {
				t.Errorf("GetMarginFactor() = %v, want %v", got, tt.wantMargin)
			}
		})
	}
}

func TestInterlace(t *testing.T) {
	if _, ok := (&PlanConfig{}).Interlace(); ok {
		t.Error("Expected no interlace spec without total_projections")
	}
	spec, ok := (&PlanConfig{TotalProjections: ptrInt(8)}).Interlace()
	if !ok || spec.NumLoops != 1 || spec.TotalProjections != 8 {
		t.Errorf("Interlace() = %+v, %v", spec, ok)
	}
}
