package flyscan

import (
	"errors"
	"fmt"
)

// Fatal planning errors. Callers match them with errors.Is; the wrapped
// message carries the offending values.
var (
	// ErrGeometryDomain is returned when the blur tolerance is not strictly
	// inside (0, detector diameter), so the blur-to-angle conversion is undefined.
	ErrGeometryDomain = errors.New("blur tolerance outside detector geometry domain")

	// ErrDegenerateSchedule is returned when no frame fits the target range,
	// the quantized step collapses to zero encoder counts, or an interlace
	// specification cannot be permuted.
	ErrDegenerateSchedule = errors.New("degenerate schedule")

	// ErrInvalidParameter is returned for non-physical inputs such as a
	// non-positive exposure, readout time or encoder resolution.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrConfigurationLookup is returned when a camera model or pixel format
	// has no calibrated readout time, or a camera is named and no calibration
	// table is configured. No value is ever guessed.
	ErrConfigurationLookup = errors.New("no calibrated readout time")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidParameter}, args...)...)
}

func degeneratef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrDegenerateSchedule}, args...)...)
}

// NoticeKind classifies a non-fatal advisory.
type NoticeKind string

const (
	// NoticeEncoderQuantization reports that the requested step was not an
	// integer number of encoder counts and has been corrected.
	NoticeEncoderQuantization NoticeKind = "encoder_quantization"
	// NoticeBlurBudgetExceeded reports that the planned velocity is faster
	// than the blur-limited maximum speed for the exposure.
	NoticeBlurBudgetExceeded NoticeKind = "blur_budget_exceeded"
	// NoticeBlurAboveNyquist reports that the realized blur is above the
	// resolution limit.
	NoticeBlurAboveNyquist NoticeKind = "blur_above_nyquist"
)

// Notice is an advisory returned alongside a valid result. The caller
// decides whether to accept it.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Value   float64    `json:"value"`
	Limit   float64    `json:"limit"`
}

func (n Notice) String() string {
	return fmt.Sprintf("%s: %s", n.Kind, n.Message)
}

func fmtGeometry(blur, diameter float64) error {
	return fmt.Errorf("%w: max_blur_px=%g must satisfy 0 < max_blur_px < %g (detector diameter)", ErrGeometryDomain, blur, diameter)
}
