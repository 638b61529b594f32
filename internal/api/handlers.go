package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/flyscan/internal/config"
	"github.com/banshee-data/flyscan/internal/db"
	"github.com/banshee-data/flyscan/internal/flyscan"
	"github.com/banshee-data/flyscan/internal/httputil"
	"github.com/banshee-data/flyscan/internal/monitoring"
	"github.com/banshee-data/flyscan/internal/units"
)

// PlanResponse is returned by POST /api/plan.
type PlanResponse struct {
	PlanID   string                     `json:"plan_id,omitempty"`
	Request  flyscan.Request            `json:"request"`
	Plan     flyscan.Plan               `json:"plan"`
	Velocity float64                    `json:"velocity"`
	Units    string                     `json:"units"`
	Schedule []flyscan.AcquisitionEvent `json:"schedule,omitempty"`
}

// LayoutResponse is returned by POST /api/layout.
type LayoutResponse struct {
	Layout flyscan.FrameLayout    `json:"layout"`
	Speed  float64                `json:"speed"`
	Units  string                 `json:"units"`
	Fixed  *flyscan.FixedStepScan `json:"fixed,omitempty"`
}

// ScheduleResponse is returned by POST /api/schedule and
// GET /api/plans/{id}/schedule.
type ScheduleResponse struct {
	TotalProjections int                        `json:"total_projections"`
	NumLoops         int                        `json:"num_loops,omitempty"`
	Events           []flyscan.AcquisitionEvent `json:"events"`
}

// decodeConfig reads a partial plan config from the body and merges it over
// the server defaults. It writes the error response itself.
func (s *Server) decodeConfig(w http.ResponseWriter, r *http.Request) (*config.PlanConfig, bool) {
	var override config.PlanConfig
	if err := httputil.DecodeJSONBody(w, r, &override); err != nil {
		httputil.BadRequest(w, "invalid request body: "+err.Error())
		return nil, false
	}
	if err := override.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, false
	}
	return s.defaults.Merge(&override), true
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	unit, ok := s.velocityUnits(r)
	if !ok {
		httputil.BadRequest(w, "Invalid 'units' parameter. Must be one of: "+units.GetValidUnitsString())
		return
	}
	cfg, ok := s.decodeConfig(w, r)
	if !ok {
		return
	}

	in, err := cfg.Input()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	req, plan, err := s.planner.Plan(r.Context(), in)
	if err != nil {
		writePlanningError(w, err)
		return
	}

	var events []flyscan.AcquisitionEvent
	if spec, ok := cfg.Interlace(); ok {
		events, err = flyscan.Interlace(spec)
		if err != nil {
			writePlanningError(w, err)
			return
		}
	}

	resp := PlanResponse{
		Request:  req,
		Plan:     plan,
		Velocity: units.ConvertVelocity(plan.Velocity, unit),
		Units:    unit,
		Schedule: events,
	}
	if s.db != nil && r.URL.Query().Get("save") != "false" {
		id, err := s.db.RecordPlan(r.URL.Query().Get("label"), req, plan, events)
		if err != nil {
			monitoring.Logf("failed to archive plan: %v", err)
			httputil.InternalServerError(w, "failed to archive plan")
			return
		}
		resp.PlanID = id
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var spec flyscan.InterlaceSpec
	if err := httputil.DecodeJSONBody(w, r, &spec); err != nil {
		httputil.BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if spec.NumLoops == 0 {
		spec.NumLoops = 1
	}
	events, err := flyscan.Interlace(spec)
	if err != nil {
		writePlanningError(w, err)
		return
	}
	httputil.WriteJSONOK(w, ScheduleResponse{
		TotalProjections: spec.TotalProjections,
		NumLoops:         spec.NumLoops,
		Events:           events,
	})
}

// handleLayout computes the max-speed frame layout for the exposure in the
// body. When rotation_step is set the fixed-step scan is returned alongside
// for comparison. ?triggers=true includes the trigger angles.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	unit, ok := s.velocityUnits(r)
	if !ok {
		httputil.BadRequest(w, "Invalid 'units' parameter. Must be one of: "+units.GetValidUnitsString())
		return
	}
	cfg, ok := s.decodeConfig(w, r)
	if !ok {
		return
	}

	geom, tol, err := cfg.Geometry()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cfg.ExposureTime == nil {
		httputil.BadRequest(w, "exposure_time is required")
		return
	}
	exposure, err := s.planner.ResolveReadout(r.Context(), flyscan.Input{
		Request: flyscan.Request{
			Exposure: flyscan.ExposureConfig{
				ExposureTime: *cfg.ExposureTime,
				ReadoutTime:  cfg.GetReadoutTime(),
				MarginFactor: cfg.GetMarginFactor(),
			},
		},
		CameraModel: cfg.GetCameraModel(),
		PixelFormat: cfg.GetPixelFormat(),
	})
	if err != nil {
		writePlanningError(w, err)
		return
	}

	triggers := r.URL.Query().Get("triggers") == "true"
	layout, err := flyscan.LayoutFrames(tol, geom, exposure.ExposureTime, exposure.ReadoutTime, cfg.GetAngularRange(), triggers)
	if err != nil {
		writePlanningError(w, err)
		return
	}
	resp := LayoutResponse{
		Layout: layout,
		Speed:  units.ConvertVelocity(layout.Speed, unit),
		Units:  unit,
	}
	if cfg.RotationStep != nil {
		fixed, err := flyscan.EvaluateFixedStep(*cfg.RotationStep, exposure.ExposureTime, exposure.ReadoutTime,
			cfg.GetAngularRange(), geom, cfg.GetNyquistLimitPx())
		if err != nil {
			writePlanningError(w, err)
			return
		}
		resp.Fixed = &fixed
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "plan archive not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}
	plans, err := s.db.ListPlans(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, plans)
}

// showPlan serves GET and DELETE for a single archived plan.
func (s *Server) showPlan(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.NotFound(w, "plan archive not configured")
		return
	}
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		rec, err := s.db.GetPlan(id)
		if err != nil {
			writeArchiveError(w, err)
			return
		}
		httputil.WriteJSONOK(w, rec)
	case http.MethodDelete:
		if err := s.db.DeletePlan(id); err != nil {
			writeArchiveError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) showSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "plan archive not configured")
		return
	}
	events, err := s.db.ScheduleEvents(r.PathValue("id"))
	if err != nil {
		writeArchiveError(w, err)
		return
	}
	httputil.WriteJSONOK(w, ScheduleResponse{
		TotalProjections: len(events),
		Events:           events,
	})
}

func writeArchiveError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrPlanNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}
