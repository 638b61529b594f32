package config

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"

	"github.com/banshee-data/flyscan/internal/flyscan"
)

// DefaultConfigPath is the path to the canonical plan defaults file.
const DefaultConfigPath = "config/plan.defaults.json"

// Defaults applied by the Get* accessors when a field is omitted.
const (
	DefaultMarginFactor   = 1.0
	DefaultMinIncrement   = 0.001 // seconds
	DefaultNyquistLimitPx = 1.0
	DefaultAngularRange   = 180.0 // degrees
)

// PlanConfig is the on-disk form of a planning request. The schema matches
// the POST /api/plan body so the same JSON can be used for the CLI and the
// HTTP API. Omitted fields are nil.
type PlanConfig struct {
	// Detector and tolerance
	PixelCount *int     `json:"pixel_count,omitempty"`
	MaxBlurPx  *float64 `json:"max_blur_px,omitempty"`

	// Timing, in seconds
	ExposureTime  *float64  `json:"exposure_time,omitempty"`
	ExposureTimes []float64 `json:"exposure_times,omitempty"` // sweep only
	ReadoutTime   *float64  `json:"readout_time,omitempty"`
	FrameRate     *float64  `json:"frame_rate,omitempty"` // Hz at zero exposure
	MarginFactor  *float64  `json:"margin_factor,omitempty"`
	MinIncrement  *float64  `json:"min_increment,omitempty"`

	// Rotation, in degrees
	CountsPerRotation *float64 `json:"counts_per_rotation,omitempty"`
	RotationStart     *float64 `json:"rotation_start,omitempty"`
	RotationStep      *float64 `json:"rotation_step,omitempty"`
	NumAngles         *int     `json:"num_angles,omitempty"`
	AngularRange      *float64 `json:"angular_range,omitempty"`

	// Interlaced schedule (optional)
	TotalProjections *int `json:"total_projections,omitempty"`
	NumLoops         *int `json:"num_loops,omitempty"`

	NyquistLimitPx *float64 `json:"nyquist_limit_px,omitempty"`

	// Calibration table lookup keys
	CameraModel *string `json:"camera_model,omitempty"`
	PixelFormat *string `json:"pixel_format,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// LoadPlanConfig loads a PlanConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadPlanConfig(path string) (*PlanConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParsePlanConfig(data)
}

// ParsePlanConfig decodes and validates a PlanConfig from JSON.
func ParsePlanConfig(data []byte) (*PlanConfig, error) {
	cfg := &PlanConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical plan defaults from DefaultConfigPath.
// Panics if the file cannot be found, intended for test setup.
func MustLoadDefaultConfig() *PlanConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/flyscan/ and deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadPlanConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Merge returns a copy of c with every field set in override replacing the
// value from c.
func (c *PlanConfig) Merge(override *PlanConfig) *PlanConfig {
	out := *c
	if override == nil {
		return &out
	}
	if override.PixelCount != nil {
		out.PixelCount = override.PixelCount
	}
	if override.MaxBlurPx != nil {
		out.MaxBlurPx = override.MaxBlurPx
	}
	if override.ExposureTime != nil {
		out.ExposureTime = override.ExposureTime
	}
	if override.ExposureTimes != nil {
		out.ExposureTimes = override.ExposureTimes
	}
	if override.ReadoutTime != nil {
		out.ReadoutTime = override.ReadoutTime
	}
	if override.FrameRate != nil {
		out.FrameRate = override.FrameRate
	}
	if override.MarginFactor != nil {
		out.MarginFactor = override.MarginFactor
	}
	if override.MinIncrement != nil {
		out.MinIncrement = override.MinIncrement
	}
	if override.CountsPerRotation != nil {
		out.CountsPerRotation = override.CountsPerRotation
	}
	if override.RotationStart != nil {
		out.RotationStart = override.RotationStart
	}
	if override.RotationStep != nil {
		out.RotationStep = override.RotationStep
	}
	if override.NumAngles != nil {
		out.NumAngles = override.NumAngles
	}
	if override.AngularRange != nil {
		out.AngularRange = override.AngularRange
	}
	if override.TotalProjections != nil {
		out.TotalProjections = override.TotalProjections
	}
	if override.NumLoops != nil {
		out.NumLoops = override.NumLoops
	}
	if override.NyquistLimitPx != nil {
		out.NyquistLimitPx = override.NyquistLimitPx
	}
	if override.CameraModel != nil {
		out.CameraModel = override.CameraModel
		// A named camera takes its readout and margin from the calibration
		// table unless the override states them itself.
		if override.ReadoutTime == nil && override.FrameRate == nil {
			out.ReadoutTime = nil
			out.FrameRate = nil
			if override.MarginFactor == nil {
				out.MarginFactor = nil
			}
		}
	}
	if override.PixelFormat != nil {
		out.PixelFormat = override.PixelFormat
	}
	return &out
}

// Validate checks the values that are set. Missing required fields are
// reported by Input, not here, so partial configs can be layered.
func (c *PlanConfig) Validate() error {
	if c.PixelCount != nil && *c.PixelCount <= 0 {
		return fmt.Errorf("pixel_count must be positive, got %d", *c.PixelCount)
	}
	if c.MaxBlurPx != nil && *c.MaxBlurPx <= 0 {
		return fmt.Errorf("max_blur_px must be positive, got %f", *c.MaxBlurPx)
	}
	if c.ExposureTime != nil && *c.ExposureTime < 0 {
		return fmt.Errorf("exposure_time must be non-negative, got %f", *c.ExposureTime)
	}
	for i, e := range c.ExposureTimes {
		if e <= 0 {
			return fmt.Errorf("exposure_times[%d] must be positive, got %f", i, e)
		}
	}
	if c.ReadoutTime != nil && *c.ReadoutTime <= 0 {
		return fmt.Errorf("readout_time must be positive, got %f", *c.ReadoutTime)
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}
	if c.MarginFactor != nil && *c.MarginFactor < 1 {
		return fmt.Errorf("margin_factor must be >= 1, got %f", *c.MarginFactor)
	}
	if c.MinIncrement != nil && *c.MinIncrement <= 0 {
		return fmt.Errorf("min_increment must be positive, got %f", *c.MinIncrement)
	}
	if c.CountsPerRotation != nil && *c.CountsPerRotation <= 0 {
		return fmt.Errorf("counts_per_rotation must be positive, got %f", *c.CountsPerRotation)
	}
	if c.NumAngles != nil && *c.NumAngles <= 0 {
		return fmt.Errorf("num_angles must be positive, got %d", *c.NumAngles)
	}
	if c.AngularRange != nil && *c.AngularRange <= 0 {
		return fmt.Errorf("angular_range must be positive, got %f", *c.AngularRange)
	}
	if c.NumLoops != nil && (*c.NumLoops <= 0 || bits.OnesCount(uint(*c.NumLoops)) != 1) {
		return fmt.Errorf("num_loops must be a positive power of two, got %d", *c.NumLoops)
	}
	if c.TotalProjections != nil && *c.TotalProjections <= 0 {
		return fmt.Errorf("total_projections must be positive, got %d", *c.TotalProjections)
	}
	if c.NyquistLimitPx != nil && *c.NyquistLimitPx <= 0 {
		return fmt.Errorf("nyquist_limit_px must be positive, got %f", *c.NyquistLimitPx)
	}
	return nil
}

// GetMarginFactor returns margin_factor or the default. When a camera model
// is named without a readout time or frame rate the margin is left to the
// calibration table and 0 is returned.
func (c *PlanConfig) GetMarginFactor() float64 {
	if c.MarginFactor != nil {
		return *c.MarginFactor
	}
	if c.GetCameraModel() != "" && c.GetReadoutTime() == 0 {
		return 0
	}
	return DefaultMarginFactor
}

// GetMinIncrement returns min_increment or the default.
func (c *PlanConfig) GetMinIncrement() float64 {
	if c.MinIncrement == nil {
		return DefaultMinIncrement
	}
	return *c.MinIncrement
}

// GetNyquistLimitPx returns nyquist_limit_px or the default.
func (c *PlanConfig) GetNyquistLimitPx() float64 {
	if c.NyquistLimitPx == nil {
		return DefaultNyquistLimitPx
	}
	return *c.NyquistLimitPx
}

// GetAngularRange returns angular_range or the default.
func (c *PlanConfig) GetAngularRange() float64 {
	if c.AngularRange == nil {
		return DefaultAngularRange
	}
	return *c.AngularRange
}

// GetRotationStart returns rotation_start, 0 when unset.
func (c *PlanConfig) GetRotationStart() float64 {
	if c.RotationStart == nil {
		return 0
	}
	return *c.RotationStart
}

// GetCameraModel returns camera_model, empty when unset.
func (c *PlanConfig) GetCameraModel() string {
	if c.CameraModel == nil {
		return ""
	}
	return *c.CameraModel
}

// GetPixelFormat returns pixel_format, empty when unset.
func (c *PlanConfig) GetPixelFormat() string {
	if c.PixelFormat == nil {
		return ""
	}
	return *c.PixelFormat
}

// GetReadoutTime returns readout_time, or 1/frame_rate when only the frame
// rate is given, or 0 when the readout is left to a collaborator.
func (c *PlanConfig) GetReadoutTime() float64 {
	if c.ReadoutTime != nil {
		return *c.ReadoutTime
	}
	if c.FrameRate != nil {
		if r, err := flyscan.ReadoutFromFrameRate(*c.FrameRate); err == nil {
			return r
		}
	}
	return 0
}

// GetCountsPerRotation returns counts_per_rotation, 0 when left to the
// encoder source.
func (c *PlanConfig) GetCountsPerRotation() float64 {
	if c.CountsPerRotation == nil {
		return 0
	}
	return *c.CountsPerRotation
}

// Geometry returns the detector geometry and blur tolerance, failing when
// either is missing.
func (c *PlanConfig) Geometry() (flyscan.DetectorGeometry, flyscan.BlurTolerance, error) {
	if c.PixelCount == nil {
		return flyscan.DetectorGeometry{}, flyscan.BlurTolerance{}, missing("pixel_count")
	}
	if c.MaxBlurPx == nil {
		return flyscan.DetectorGeometry{}, flyscan.BlurTolerance{}, missing("max_blur_px")
	}
	return flyscan.DetectorGeometry{PixelCount: *c.PixelCount}, flyscan.BlurTolerance{MaxBlurPx: *c.MaxBlurPx}, nil
}

// Input resolves the config into a planner input. Encoder resolution and
// readout timing may remain zero for the planner's collaborators to fill.
func (c *PlanConfig) Input() (flyscan.Input, error) {
	geom, tol, err := c.Geometry()
	if err != nil {
		return flyscan.Input{}, err
	}
	if c.ExposureTime == nil {
		return flyscan.Input{}, missing("exposure_time")
	}
	if c.RotationStep == nil {
		return flyscan.Input{}, missing("rotation_step")
	}
	if c.NumAngles == nil {
		return flyscan.Input{}, missing("num_angles")
	}

	return flyscan.Input{
		Request: flyscan.Request{
			Geometry:  geom,
			Tolerance: tol,
			Exposure: flyscan.ExposureConfig{
				ExposureTime: *c.ExposureTime,
				ReadoutTime:  c.GetReadoutTime(),
				MarginFactor: c.GetMarginFactor(),
				MinIncrement: c.GetMinIncrement(),
			},
			Rotation: flyscan.RotationPlan{
				Start:     c.GetRotationStart(),
				Step:      *c.RotationStep,
				NumAngles: *c.NumAngles,
			},
			Encoder:        flyscan.EncoderSpec{CountsPerRotation: c.GetCountsPerRotation()},
			NyquistLimitPx: c.GetNyquistLimitPx(),
		},
		CameraModel: c.GetCameraModel(),
		PixelFormat: c.GetPixelFormat(),
	}, nil
}

// Interlace returns the interlace spec, or false when the config does not
// request an interlaced schedule. num_loops defaults to 1.
func (c *PlanConfig) Interlace() (flyscan.InterlaceSpec, bool) {
	if c.TotalProjections == nil {
		return flyscan.InterlaceSpec{}, false
	}
	spec := flyscan.InterlaceSpec{TotalProjections: *c.TotalProjections, NumLoops: 1}
	if c.NumLoops != nil {
		spec.NumLoops = *c.NumLoops
	}
	return spec, true
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", flyscan.ErrInvalidParameter, field)
}
