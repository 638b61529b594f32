package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/banshee-data/flyscan/internal/api"
	"github.com/banshee-data/flyscan/internal/calibration"
	"github.com/banshee-data/flyscan/internal/config"
	"github.com/banshee-data/flyscan/internal/db"
	"github.com/banshee-data/flyscan/internal/device"
	"github.com/banshee-data/flyscan/internal/flyscan"
	"github.com/banshee-data/flyscan/internal/sweep"
	"github.com/banshee-data/flyscan/internal/units"
)

// plannerOptions are the flags shared by the planning commands.
type plannerOptions struct {
	defaultsPath string
	configPath   string
	camerasPath  string
	deviceURL    string
	timeout      time.Duration
}

func (o *plannerOptions) register(fs *flag.FlagSet) {
	fs.StringVar(&o.defaultsPath, "defaults", config.DefaultConfigPath, "Plan defaults JSON (empty to start from nothing)")
	fs.StringVar(&o.configPath, "config", "", "Plan config JSON merged over the defaults")
	fs.StringVar(&o.camerasPath, "cameras", "", "Camera calibration YAML for readout lookups")
	fs.StringVar(&o.deviceURL, "device", "", "Controller base URL for encoder resolution and frame rate")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "Timeout for controller queries")
}

// loadConfig returns the defaults with the --config overrides applied.
func (o *plannerOptions) loadConfig() (*config.PlanConfig, error) {
	cfg := &config.PlanConfig{}
	if o.defaultsPath != "" {
		defaults, err := config.LoadPlanConfig(o.defaultsPath)
		if err != nil {
			return nil, fmt.Errorf("load defaults: %w", err)
		}
		cfg = defaults
	}
	if o.configPath == "" {
		return cfg, nil
	}
	override, err := config.LoadPlanConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	return cfg.Merge(override), nil
}

// planner wires the calibration table and device controller named by the
// flags into a Planner.
func (o *plannerOptions) planner() (*flyscan.Planner, error) {
	p := &flyscan.Planner{}
	if o.camerasPath != "" {
		table, err := calibration.LoadFile(o.camerasPath)
		if err != nil {
			return nil, err
		}
		log.Printf("loaded calibration for %d camera models from %s", len(table.Models()), o.camerasPath)
		p.Readout = table
	}
	if o.deviceURL != "" {
		ctrl := device.NewController(o.deviceURL, nil)
		p.Encoder = ctrl
		p.FrameRate = ctrl
	}
	return p, nil
}

// isFlagSet reports whether name was given on the command line.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func checkUnits(u string) error {
	if !units.IsValid(u) {
		return fmt.Errorf("invalid units %q, must be one of: %s", u, units.GetValidUnitsString())
	}
	return nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runPlan(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	var opts plannerOptions
	opts.register(fs)
	exposure := fs.Float64("exposure", 0, "Override exposure_time in seconds")
	dbPath := fs.String("db", "", "Archive the plan in this SQLite database")
	label := fs.String("label", "", "Label stored with the archived plan")
	unit := fs.String("units", units.DegPerSec, "Velocity units: "+units.GetValidUnitsString())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkUnits(*unit); err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if isFlagSet(fs, "exposure") {
		cfg.ExposureTime = exposure
	}
	p, err := opts.planner()
	if err != nil {
		return err
	}
	in, err := cfg.Input()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	req, plan, err := p.Plan(ctx, in)
	if err != nil {
		return err
	}

	var events []flyscan.AcquisitionEvent
	if spec, ok := cfg.Interlace(); ok {
		if events, err = flyscan.Interlace(spec); err != nil {
			return err
		}
	}

	resp := api.PlanResponse{
		Request:  req,
		Plan:     plan,
		Velocity: units.ConvertVelocity(plan.Velocity, *unit),
		Units:    *unit,
		Schedule: events,
	}
	if *dbPath != "" {
		archive, err := db.NewDB(*dbPath)
		if err != nil {
			return err
		}
		defer archive.Close()
		if resp.PlanID, err = archive.RecordPlan(*label, req, plan, events); err != nil {
			return fmt.Errorf("archive plan: %w", err)
		}
		log.Printf("archived plan %s in %s", resp.PlanID, *dbPath)
	}
	return writeJSON(out, resp)
}

func runLayout(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("layout", flag.ContinueOnError)
	var opts plannerOptions
	opts.register(fs)
	exposure := fs.Float64("exposure", 0, "Override exposure_time in seconds")
	triggers := fs.Bool("triggers", false, "Include the trigger angle of every frame")
	unit := fs.String("units", units.DegPerSec, "Speed units: "+units.GetValidUnitsString())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkUnits(*unit); err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if isFlagSet(fs, "exposure") {
		cfg.ExposureTime = exposure
	}
	p, err := opts.planner()
	if err != nil {
		return err
	}
	geom, tol, err := cfg.Geometry()
	if err != nil {
		return err
	}
	if cfg.ExposureTime == nil {
		return fmt.Errorf("exposure_time is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	exp, err := resolveReadout(ctx, p, cfg, *cfg.ExposureTime)
	if err != nil {
		return err
	}

	layout, err := flyscan.LayoutFrames(tol, geom, exp.ExposureTime, exp.ReadoutTime, cfg.GetAngularRange(), *triggers)
	if err != nil {
		return err
	}
	resp := api.LayoutResponse{
		Layout: layout,
		Speed:  units.ConvertVelocity(layout.Speed, *unit),
		Units:  *unit,
	}
	if cfg.RotationStep != nil {
		fixed, err := flyscan.EvaluateFixedStep(*cfg.RotationStep, exp.ExposureTime, exp.ReadoutTime,
			cfg.GetAngularRange(), geom, cfg.GetNyquistLimitPx())
		if err != nil {
			return err
		}
		resp.Fixed = &fixed
	}
	return writeJSON(out, resp)
}

// resolveReadout fills the readout time for exposure from the config or
// the planner's readout sources.
func resolveReadout(ctx context.Context, p *flyscan.Planner, cfg *config.PlanConfig, exposure float64) (flyscan.ExposureConfig, error) {
	return p.ResolveReadout(ctx, flyscan.Input{
		Request: flyscan.Request{
			Exposure: flyscan.ExposureConfig{
				ExposureTime: exposure,
				ReadoutTime:  cfg.GetReadoutTime(),
				MarginFactor: cfg.GetMarginFactor(),
			},
		},
		CameraModel: cfg.GetCameraModel(),
		PixelFormat: cfg.GetPixelFormat(),
	})
}

func runSchedule(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	n := fs.Int("n", 0, "Total projections (required)")
	k := fs.Int("k", 1, "Number of interlaced loops, a power of two")
	format := fs.String("format", "json", "Output format: json or csv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n == 0 {
		return fmt.Errorf("-n is required")
	}

	spec := flyscan.InterlaceSpec{TotalProjections: *n, NumLoops: *k}
	events, err := flyscan.Interlace(spec)
	if err != nil {
		return err
	}

	switch *format {
	case "json":
		return writeJSON(out, api.ScheduleResponse{
			TotalProjections: spec.TotalProjections,
			NumLoops:         spec.NumLoops,
			Events:           events,
		})
	case "csv":
		return writeScheduleCSV(out, events)
	default:
		return fmt.Errorf("unknown format %q, must be json or csv", *format)
	}
}

func writeScheduleCSV(out io.Writer, events []flyscan.AcquisitionEvent) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"sequence_index", "loop_id", "angle_deg"}); err != nil {
		return err
	}
	for _, ev := range events {
		row := []string{
			strconv.Itoa(ev.SequenceIndex),
			strconv.Itoa(ev.LoopID),
			strconv.FormatFloat(ev.AngleDeg, 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func runSweep(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	var opts plannerOptions
	opts.register(fs)
	exposuresFlag := fs.String("exposures", "", "Exposure times as min:max:step or a comma list (default: exposure_times from config)")
	outPath := fs.String("out", "", "CSV output file (default: stdout)")
	workers := fs.Int("workers", 0, "Parallel evaluations (default: GOMAXPROCS)")
	fixed := fs.Bool("fixed", false, "Compare against the configured fixed rotation_step")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	exposures, err := sweep.ParseParamList(*exposuresFlag)
	if err != nil {
		return fmt.Errorf("parse -exposures: %w", err)
	}
	if len(exposures) == 0 {
		exposures = cfg.ExposureTimes
	}
	if len(exposures) == 0 {
		return fmt.Errorf("no exposure times: set -exposures or exposure_times in the config")
	}

	geom, tol, err := cfg.Geometry()
	if err != nil {
		return err
	}
	p, err := opts.planner()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	exp, err := resolveReadout(ctx, p, cfg, 0)
	if err != nil {
		return err
	}

	params := sweep.Params{
		Geometry:       geom,
		Tolerance:      tol,
		ReadoutTime:    exp.ReadoutTime,
		RangeDeg:       cfg.GetAngularRange(),
		NyquistLimitPx: cfg.GetNyquistLimitPx(),
	}
	if *fixed {
		if cfg.RotationStep == nil {
			return fmt.Errorf("-fixed needs rotation_step in the config")
		}
		params.FixedStepDeg = *cfg.RotationStep
	}

	start := time.Now()
	points, err := sweep.Evaluate(context.Background(), params, exposures, *workers)
	if err != nil {
		return err
	}

	w := out
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := sweep.NewCSVWriter(w, *fixed).WriteAll(points); err != nil {
		return fmt.Errorf("write sweep: %w", err)
	}

	s := sweep.Summarize(points)
	log.Printf("swept %d exposures in %v: max speed %.3f..%.3f deg/s, %d degenerate, best exposure %.4f s (%.0f frames)",
		s.Points, time.Since(start).Round(time.Millisecond), s.MaxSpeed.Min, s.MaxSpeed.Max,
		s.Degenerate, s.BestExposure, s.Frames.Max)
	return nil
}

// newHandler mounts the API behind the request logger and, when the plan
// archive is open, the admin debug routes.
func newHandler(srv *api.Server, archive *db.DB) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle("/api/", api.LoggingMiddleware(srv.ServeMux()))
	if archive != nil {
		if err := archive.AttachAdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("attach admin routes: %w", err)
		}
	}
	return mux, nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var opts plannerOptions
	opts.register(fs)
	listen := fs.String("listen", ":8080", "Listen address")
	dbPath := fs.String("db", "flyscan.db", "Plan archive database (empty to disable archiving)")
	unit := fs.String("units", units.DegPerSec, "Default velocity units: "+units.GetValidUnitsString())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if err := checkUnits(*unit); err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	p, err := opts.planner()
	if err != nil {
		return err
	}

	var archive *db.DB
	if *dbPath != "" {
		if archive, err = db.NewDB(*dbPath); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer archive.Close()
	}

	handler, err := newHandler(api.NewServer(p, archive, cfg, *unit), archive)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: handler,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("serving planner API on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

func runMigrate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", "flyscan.db", "Plan archive database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one of up, down or version")
	}

	archive, err := db.Open(*dbPath)
	if err != nil {
		return err
	}
	defer archive.Close()

	switch fs.Arg(0) {
	case "up":
		err = archive.MigrateUp()
	case "down":
		err = archive.MigrateDown()
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", fs.Arg(0))
	}
	if err != nil {
		return err
	}

	version, dirty, err := archive.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version %d (dirty: %v)\n", version, dirty)
	return nil
}
