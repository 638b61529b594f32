// Package device queries instrument controllers over HTTP for the values
// the planner resolves at run time: encoder resolution and the zero-exposure
// frame rate. It is read-only; nothing here moves a stage or arms a camera.
package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/flyscan/internal/httputil"
)

// Controller is a motion or camera controller exposing a JSON status API.
//
//	GET {BaseURL}/encoder           -> {"counts_per_rotation": 11840200}
//	GET {BaseURL}/camera/frame_rate -> {"frame_rate": 161.8}
type Controller struct {
	Client  httputil.HTTPClient
	BaseURL string
}

// NewController returns a Controller using client, or the default HTTP
// client when client is nil.
func NewController(baseURL string, client httputil.HTTPClient) *Controller {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Controller{Client: client, BaseURL: strings.TrimRight(baseURL, "/")}
}

type encoderStatus struct {
	CountsPerRotation float64 `json:"counts_per_rotation"`
}

type frameRateStatus struct {
	FrameRate float64 `json:"frame_rate"`
}

// CountsPerRotation implements flyscan.EncoderSource.
func (c *Controller) CountsPerRotation(ctx context.Context) (float64, error) {
	var s encoderStatus
	if err := httputil.GetJSON(ctx, c.Client, c.BaseURL+"/encoder", &s); err != nil {
		return 0, err
	}
	if !(s.CountsPerRotation > 0) {
		return 0, fmt.Errorf("controller reported counts_per_rotation %g", s.CountsPerRotation)
	}
	return s.CountsPerRotation, nil
}

// FrameRate implements flyscan.FrameRateSource.
func (c *Controller) FrameRate(ctx context.Context) (float64, error) {
	var s frameRateStatus
	if err := httputil.GetJSON(ctx, c.Client, c.BaseURL+"/camera/frame_rate", &s); err != nil {
		return 0, err
	}
	if !(s.FrameRate > 0) {
		return 0, fmt.Errorf("controller reported frame_rate %g", s.FrameRate)
	}
	return s.FrameRate, nil
}
