package flyscan

// FrameTime returns the minimum spacing between triggers for one exposure.
//
// The margined exposure is used when it covers the readout; otherwise the
// readout plus MinIncrement, so the result is always strictly greater than
// the readout time in that branch.
func FrameTime(cfg ExposureConfig) (float64, error) {
	if cfg.ExposureTime < 0 {
		return 0, invalidf("exposure_time must not be negative, got %g", cfg.ExposureTime)
	}
	if !(cfg.ReadoutTime > 0) {
		return 0, invalidf("readout_time must be positive, got %g", cfg.ReadoutTime)
	}
	if !(cfg.MarginFactor >= 1) {
		return 0, invalidf("margin_factor must be >= 1, got %g", cfg.MarginFactor)
	}
	if !(cfg.MinIncrement > 0) {
		return 0, invalidf("min_increment must be positive, got %g", cfg.MinIncrement)
	}

	candidate := cfg.ExposureTime * cfg.MarginFactor
	if candidate >= cfg.ReadoutTime {
		return candidate, nil
	}
	return cfg.ReadoutTime + cfg.MinIncrement, nil
}

// ReadoutFromFrameRate converts a frame rate measured at (near) zero exposure
// into a readout time in seconds.
func ReadoutFromFrameRate(fps float64) (float64, error) {
	if !(fps > 0) {
		return 0, invalidf("frame rate must be positive, got %g", fps)
	}
	return 1 / fps, nil
}
