package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/flyscan/internal/flyscan"
	"github.com/banshee-data/flyscan/internal/httputil"
	"github.com/banshee-data/flyscan/internal/monitoring"
	"github.com/banshee-data/flyscan/internal/sweep"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// envelope is the wire format of every sweep stream message.
type envelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// SweepStart is the data of the "sweep_start" message.
type SweepStart struct {
	Exposures   int     `json:"exposures"`
	ReadoutTime float64 `json:"readout_time"`
	FixedStep   float64 `json:"fixed_step_deg,omitempty"`
}

// SweepPoint is the data of a "point" message. Points arrive in completion
// order; Index is the position of the exposure in the request.
type SweepPoint struct {
	Index int         `json:"index"`
	Point sweep.Point `json:"point"`
}

// streamSweep evaluates the speed envelope over the server defaults and
// streams each point over a WebSocket as soon as it is computed, followed by
// a "summary" (or "error") message and a normal close.
//
//	GET /api/sweep/stream?exposures=0.01:0.45:0.01&fixed=true
func (s *Server) streamSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	exposures, err := sweep.ParseParamList(q.Get("exposures"))
	if err != nil {
		httputil.BadRequest(w, "Invalid 'exposures' parameter: "+err.Error())
		return
	}
	if len(exposures) == 0 {
		exposures = s.defaults.ExposureTimes
	}
	if len(exposures) == 0 {
		httputil.BadRequest(w, "no exposure times: set 'exposures' or exposure_times in the defaults")
		return
	}
	geom, tol, err := s.defaults.Geometry()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	exp, err := s.planner.ResolveReadout(r.Context(), flyscan.Input{
		Request: flyscan.Request{
			Exposure: flyscan.ExposureConfig{
				ReadoutTime:  s.defaults.GetReadoutTime(),
				MarginFactor: s.defaults.GetMarginFactor(),
			},
		},
		CameraModel: s.defaults.GetCameraModel(),
		PixelFormat: s.defaults.GetPixelFormat(),
	})
	if err != nil {
		writePlanningError(w, err)
		return
	}

	params := sweep.Params{
		Geometry:       geom,
		Tolerance:      tol,
		ReadoutTime:    exp.ReadoutTime,
		RangeDeg:       s.defaults.GetAngularRange(),
		NyquistLimitPx: s.defaults.GetNyquistLimitPx(),
	}
	if q.Get("fixed") == "true" {
		if s.defaults.RotationStep == nil {
			httputil.BadRequest(w, "fixed-step comparison needs rotation_step in the defaults")
			return
		}
		params.FixedStepDeg = *s.defaults.RotationStep
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		monitoring.Logf("sweep stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends anything; reading only notices it going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(typ string, data interface{}) error {
		ts := time.Now().UTC()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(envelope{Type: typ, Ts: &ts, Data: data})
	}

	start := time.Now()
	if err := send("sweep_start", SweepStart{
		Exposures:   len(exposures),
		ReadoutTime: params.ReadoutTime,
		FixedStep:   params.FixedStepDeg,
	}); err != nil {
		return
	}

	points := make([]sweep.Point, len(exposures))
	err = sweep.EvaluateFunc(ctx, params, exposures, 0, func(i int, pt sweep.Point) error {
		points[i] = pt
		return send("point", SweepPoint{Index: i, Point: pt})
	})
	if err != nil {
		monitoring.Logf("sweep stream aborted after %v: %v", time.Since(start), err)
		_ = send("error", map[string]string{"message": err.Error()})
	} else {
		_ = send("summary", sweep.Summarize(points))
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
