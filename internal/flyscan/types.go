// Package flyscan computes the operating envelope of a continuously rotating
// (fly-scan) tomographic acquisition: blur-limited rotation speed, frame
// period, encoder-quantized rotation step, velocity setpoint, realized blur
// and interlaced projection ordering.
//
// Every function here is a pure computation over explicit configuration
// values. Device access lives behind the collaborator interfaces in
// planner.go.
package flyscan

// DetectorGeometry describes the horizontal extent of the detector.
type DetectorGeometry struct {
	PixelCount int `json:"pixel_count"`
}

// Radius is the detector half-width in pixels.
func (g DetectorGeometry) Radius() float64 {
	return float64(g.PixelCount) / 2
}

// BlurTolerance is the maximum acceptable motion blur during one exposure.
type BlurTolerance struct {
	MaxBlurPx float64 `json:"max_blur_px"`
}

// ExposureConfig carries the per-frame timing inputs, all in seconds.
type ExposureConfig struct {
	ExposureTime float64 `json:"exposure_time"`
	// ReadoutTime is usually 1/frame rate measured at zero exposure.
	ReadoutTime  float64 `json:"readout_time"`
	MarginFactor float64 `json:"margin_factor"`
	// MinIncrement is added to ReadoutTime when the margined exposure is
	// shorter than the readout.
	MinIncrement float64 `json:"min_increment"`
}

// RotationPlan is the requested angular sampling of a scan, in degrees.
type RotationPlan struct {
	Start     float64 `json:"rotation_start"`
	Step      float64 `json:"rotation_step"`
	NumAngles int     `json:"num_angles"`
}

// RequestedStop is the end angle implied by the requested step.
func (p RotationPlan) RequestedStop() float64 {
	return p.Start + float64(p.NumAngles)*p.Step
}

// EncoderSpec is the rotary encoder resolution.
type EncoderSpec struct {
	CountsPerRotation float64 `json:"counts_per_rotation"`
}

// CountsPerDegree converts the per-rotation resolution to counts per degree.
func (e EncoderSpec) CountsPerDegree() float64 {
	return e.CountsPerRotation / 360
}

// QuantizedStep is the output of Quantize. ActualStep and ActualStop are
// always populated, whether or not the step was adjusted.
type QuantizedStep struct {
	RequestedStep float64 `json:"requested_step"`
	ActualStep    float64 `json:"actual_step"`
	RequestedStop float64 `json:"requested_stop"`
	ActualStop    float64 `json:"actual_stop"`
	RawCounts     float64 `json:"raw_counts"`
	Counts        float64 `json:"counts"`
	WasAdjusted   bool    `json:"was_adjusted"`
	// Deviation is |RawCounts - Counts|.
	Deviation float64 `json:"deviation"`
}

// InterlaceSpec splits TotalProjections into NumLoops interlaced passes.
type InterlaceSpec struct {
	TotalProjections int `json:"total_projections"`
	NumLoops         int `json:"num_loops"`
}

// AcquisitionEvent is one entry of a time-ordered interlaced schedule.
type AcquisitionEvent struct {
	SequenceIndex int     `json:"sequence_index"`
	LoopID        int     `json:"loop_id"`
	AngleDeg      float64 `json:"angle_deg"`
}
