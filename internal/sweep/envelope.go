package sweep

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/flyscan/internal/flyscan"
)

// Params holds the fixed inputs of an exposure sweep.
type Params struct {
	Geometry    flyscan.DetectorGeometry
	Tolerance   flyscan.BlurTolerance
	ReadoutTime float64
	RangeDeg    float64
	// FixedStepDeg enables the fixed-step comparison when positive.
	FixedStepDeg   float64
	NyquistLimitPx float64
}

// Point is the envelope at one exposure time. Layout is zero and LayoutErr
// set when no frame fits at that exposure.
type Point struct {
	ExposureTime float64                `json:"exposure_time"`
	MaxSpeed     float64                `json:"max_speed"`
	Layout       flyscan.FrameLayout    `json:"layout"`
	LayoutErr    string                 `json:"layout_error,omitempty"`
	Fixed        *flyscan.FixedStepScan `json:"fixed,omitempty"`
}

// Evaluate computes one Point per exposure using up to workers goroutines
// (GOMAXPROCS when workers <= 0). Results keep the order of exposures.
// Geometry and parameter errors abort the sweep; a degenerate layout at a
// single exposure does not.
func Evaluate(ctx context.Context, p Params, exposures []float64, workers int) ([]Point, error) {
	points := make([]Point, len(exposures))
	err := EvaluateFunc(ctx, p, exposures, workers, func(i int, pt Point) error {
		points[i] = pt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// EvaluateFunc is Evaluate with each point handed to emit as soon as it is
// computed, i being its index in exposures. Calls to emit are serialized but
// arrive in completion order. An emit error cancels the rest of the sweep.
func EvaluateFunc(ctx context.Context, p Params, exposures []float64, workers int, emit func(i int, pt Point) error) error {
	if len(exposures) == 0 {
		return fmt.Errorf("%w: no exposure times to sweep", flyscan.ErrInvalidParameter)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, exposure := range exposures {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pt, err := evaluateOne(p, exposure)
			if err != nil {
				return fmt.Errorf("exposure %g s: %w", exposure, err)
			}
			mu.Lock()
			defer mu.Unlock()
			return emit(i, pt)
		})
	}
	return g.Wait()
}

func evaluateOne(p Params, exposure float64) (Point, error) {
	speed, err := flyscan.MaxSpeed(p.Tolerance, p.Geometry, exposure)
	if err != nil {
		return Point{}, err
	}
	pt := Point{ExposureTime: exposure, MaxSpeed: speed}

	layout, err := flyscan.LayoutFrames(p.Tolerance, p.Geometry, exposure, p.ReadoutTime, p.RangeDeg, false)
	switch {
	case errors.Is(err, flyscan.ErrDegenerateSchedule):
		pt.LayoutErr = err.Error()
	case err != nil:
		return Point{}, err
	default:
		pt.Layout = layout
	}

	if p.FixedStepDeg > 0 {
		fixed, err := flyscan.EvaluateFixedStep(p.FixedStepDeg, exposure, p.ReadoutTime, p.RangeDeg, p.Geometry, p.NyquistLimitPx)
		if err != nil {
			return Point{}, err
		}
		pt.Fixed = &fixed
	}
	return pt, nil
}
