// Package api serves the planner over HTTP: plan computation, interlaced
// schedules, max-speed layouts, a streamed exposure sweep and the plan
// archive.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/flyscan/internal/calibration"
	"github.com/banshee-data/flyscan/internal/config"
	"github.com/banshee-data/flyscan/internal/db"
	"github.com/banshee-data/flyscan/internal/flyscan"
	"github.com/banshee-data/flyscan/internal/httputil"
	"github.com/banshee-data/flyscan/internal/monitoring"
	"github.com/banshee-data/flyscan/internal/units"
	"github.com/banshee-data/flyscan/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server handles the planning API. The archive is optional; without it
// plans are computed but not stored and the /api/plans routes return 404.
type Server struct {
	planner  *flyscan.Planner
	db       *db.DB
	defaults *config.PlanConfig
	units    string
}

// NewServer returns a Server. Request bodies are merged over defaults, and
// velocities are reported in units unless a request overrides it.
func NewServer(planner *flyscan.Planner, archive *db.DB, defaults *config.PlanConfig, velocityUnits string) *Server {
	if planner == nil {
		planner = &flyscan.Planner{}
	}
	if defaults == nil {
		defaults = &config.PlanConfig{}
	}
	if !units.IsValid(velocityUnits) {
		velocityUnits = units.DegPerSec
	}
	return &Server{
		planner:  planner,
		db:       archive,
		defaults: defaults,
		units:    velocityUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/plan", s.handlePlan)
	mux.HandleFunc("/api/schedule", s.handleSchedule)
	mux.HandleFunc("/api/layout", s.handleLayout)
	mux.HandleFunc("/api/sweep/stream", s.streamSweep)
	mux.HandleFunc("/api/plans", s.listPlans)
	mux.HandleFunc("/api/plans/{id}", s.showPlan)
	mux.HandleFunc("/api/plans/{id}/schedule", s.showSchedule)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

// velocityUnits returns the ?units= override or the server default.
func (s *Server) velocityUnits(r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	return u, units.IsValid(u)
}

// writePlanningError maps planning failures to a status code. Inputs that
// parse but cannot be planned are 422; anything else is a server fault.
func writePlanningError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flyscan.ErrGeometryDomain),
		errors.Is(err, flyscan.ErrDegenerateSchedule),
		errors.Is(err, flyscan.ErrInvalidParameter),
		errors.Is(err, calibration.ErrConfigurationLookup):
		httputil.UnprocessableEntity(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":       s.units,
		"valid_units": units.ValidUnits,
		"archive":     s.db != nil,
		"defaults":    s.defaults,
	})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Info())
}
