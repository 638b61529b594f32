package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/flyscan/internal/flyscan"
)

// ErrPlanNotFound is returned for an unknown plan ID.
var ErrPlanNotFound = errors.New("plan not found")

// PlanRecord is an archived plan with the exact request that produced it.
type PlanRecord struct {
	PlanID    string          `json:"plan_id"`
	Label     string          `json:"label"`
	Request   flyscan.Request `json:"request"`
	Plan      flyscan.Plan    `json:"plan"`
	CreatedAt int64           `json:"created_at"`
}

// PlanSummary is the list view of an archived plan.
type PlanSummary struct {
	PlanID       string  `json:"plan_id"`
	Label        string  `json:"label"`
	ExposureTime float64 `json:"exposure_time"`
	FrameTime    float64 `json:"frame_time"`
	ActualStep   float64 `json:"actual_step"`
	Velocity     float64 `json:"velocity"`
	BlurPx       float64 `json:"blur_px"`
	NoticeCount  int     `json:"notice_count"`
	EventCount   int     `json:"event_count"`
	CreatedAt    int64   `json:"created_at"`
}

// RecordPlan archives a plan and its optional schedule in one transaction
// and returns the generated plan ID.
func (db *DB) RecordPlan(label string, req flyscan.Request, plan flyscan.Plan, events []flyscan.AcquisitionEvent) (string, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}

	id := uuid.New().String()
	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO plans (
			plan_id, label, pixel_count, max_blur_px, exposure_time, readout_time,
			margin_factor, counts_per_rotation, requested_step, actual_step, num_angles,
			frame_time, velocity, max_speed, blur_px, notice_count,
			request_json, plan_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, label, req.Geometry.PixelCount, req.Tolerance.MaxBlurPx, req.Exposure.ExposureTime, req.Exposure.ReadoutTime,
		req.Exposure.MarginFactor, req.Encoder.CountsPerRotation, plan.Step.RequestedStep, plan.Step.ActualStep, req.Rotation.NumAngles,
		plan.FrameTime, plan.Velocity, plan.MaxSpeed, plan.Blur.BlurPx, len(plan.Notices),
		string(reqJSON), string(planJSON), db.clock.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert plan: %w", err)
	}

	if len(events) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO schedule_events (plan_id, sequence_index, loop_id, angle_deg) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("prepare schedule insert: %w", err)
		}
		defer stmt.Close()
		for _, ev := range events {
			if _, err := stmt.Exec(id, ev.SequenceIndex, ev.LoopID, ev.AngleDeg); err != nil {
				return "", fmt.Errorf("insert schedule event %d: %w", ev.SequenceIndex, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit plan: %w", err)
	}
	return id, nil
}

// GetPlan returns a single archived plan by ID.
func (db *DB) GetPlan(id string) (*PlanRecord, error) {
	var (
		rec      PlanRecord
		reqJSON  string
		planJSON string
	)
	err := db.QueryRow(`
		SELECT plan_id, label, request_json, plan_json, created_at
		FROM plans WHERE plan_id = ?`, id,
	).Scan(&rec.PlanID, &rec.Label, &reqJSON, &planJSON, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
		}
		return nil, fmt.Errorf("scan plan: %w", err)
	}
	if err := json.Unmarshal([]byte(reqJSON), &rec.Request); err != nil {
		return nil, fmt.Errorf("decode request of plan %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(planJSON), &rec.Plan); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", id, err)
	}
	return &rec, nil
}

// ListPlans returns the most recent plans, newest first. A non-positive
// limit defaults to 100.
func (db *DB) ListPlans(limit int) ([]PlanSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT p.plan_id, p.label, p.exposure_time, p.frame_time, p.actual_step,
		       p.velocity, p.blur_px, p.notice_count, p.created_at,
		       (SELECT COUNT(*) FROM schedule_events e WHERE e.plan_id = p.plan_id)
		FROM plans p
		ORDER BY p.created_at DESC, p.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	plans := []PlanSummary{}
	for rows.Next() {
		var s PlanSummary
		if err := rows.Scan(
			&s.PlanID, &s.Label, &s.ExposureTime, &s.FrameTime, &s.ActualStep,
			&s.Velocity, &s.BlurPx, &s.NoticeCount, &s.CreatedAt,
			&s.EventCount,
		); err != nil {
			return nil, err
		}
		plans = append(plans, s)
	}
	return plans, rows.Err()
}

// ScheduleEvents returns the archived schedule of a plan in acquisition
// order. A plan recorded without a schedule yields an empty slice.
func (db *DB) ScheduleEvents(id string) ([]flyscan.AcquisitionEvent, error) {
	var exists int
	if err := db.QueryRow(`SELECT COUNT(*) FROM plans WHERE plan_id = ?`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}

	rows, err := db.Query(`
		SELECT sequence_index, loop_id, angle_deg
		FROM schedule_events
		WHERE plan_id = ?
		ORDER BY sequence_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	events := []flyscan.AcquisitionEvent{}
	for rows.Next() {
		var ev flyscan.AcquisitionEvent
		if err := rows.Scan(&ev.SequenceIndex, &ev.LoopID, &ev.AngleDeg); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeletePlan removes a plan and its schedule.
func (db *DB) DeletePlan(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM schedule_events WHERE plan_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM plans WHERE plan_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return tx.Commit()
}
