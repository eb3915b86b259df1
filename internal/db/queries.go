package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/mcp"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// TimeLayout is how timestamps are stored; it sorts lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

func now() string {
	return time.Now().UTC().Format(TimeLayout)
}

// Run represents a row in the runs table.
type Run struct {
	ID         string
	Config     string
	Side       string
	MCVersion  string
	Status     string
	StartedAt  string
	FinishedAt string
	Output     string
	Error      string
}

// StepEvent represents a row in the step_events table.
type StepEvent struct {
	ID         int64
	RunID      string
	Step       string
	Type       string
	Event      string
	DurationMs int64
	Output     string
	Detail     string
	Timestamp  string
}

// StartRun records a new running pipeline execution and returns its id.
func (d *DB) StartRun(config, side, mcVersion string) (string, error) {
	id := uuid.NewString()
	_, err := d.exec(
		`INSERT INTO runs (id, config, side, mc_version, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, config, side, mcVersion, StatusRunning, now(),
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run as done. A nil runErr means success.
func (d *DB) FinishRun(id, output string, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := d.exec(
		`UPDATE runs SET status = ?, finished_at = ?, output = ?, error = ? WHERE id = ?`,
		status, now(), output, msg, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: no run %q", id)
	}
	return nil
}

// LogStepEvent inserts a step lifecycle event for a run.
func (d *DB) LogStepEvent(runID string, ev mcp.StepEvent) error {
	detail := ""
	if ev.Err != nil {
		detail = ev.Err.Error()
	}
	_, err := d.exec(
		`INSERT INTO step_events (run_id, step, type, event, duration_ms, output, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, ev.Step, ev.Type, ev.Event, ev.Duration.Milliseconds(), ev.Output, detail, now(),
	)
	if err != nil {
		return fmt.Errorf("log step event: %w", err)
	}
	return nil
}

const runColumns = `id, config, side, mc_version, status, started_at, finished_at, output, error`

func scanRun(scan func(...any) error) (Run, error) {
	var r Run
	var finished, output, errMsg sql.NullString
	err := scan(&r.ID, &r.Config, &r.Side, &r.MCVersion, &r.Status, &r.StartedAt, &finished, &output, &errMsg)
	r.FinishedAt = finished.String
	r.Output = output.String
	r.Error = errMsg.String
	return r, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (d *DB) ListRuns(limit int) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given id, or nil when none exists.
func (d *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(d.queryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// StepEvents returns the events of a run in insertion order.
func (d *DB) StepEvents(runID string) ([]StepEvent, error) {
	rows, err := d.query(
		`SELECT id, run_id, step, type, event, duration_ms, output, detail, timestamp
		 FROM step_events WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get step events: %w", err)
	}
	defer rows.Close()

	var events []StepEvent
	for rows.Next() {
		var e StepEvent
		var dur sql.NullInt64
		var output, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Step, &e.Type, &e.Event, &dur, &output, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan step event: %w", err)
		}
		e.DurationMs = dur.Int64
		e.Output = output.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recorder returns an mcp.Recorder that logs step events of runID. Write
// failures are logged and do not interrupt the pipeline.
func (d *DB) Recorder(runID string, log zerolog.Logger) mcp.Recorder {
	return &recorder{db: d, runID: runID, log: log}
}

type recorder struct {
	db    *DB
	runID string
	log   zerolog.Logger
}

func (r *recorder) RecordStep(ev mcp.StepEvent) {
	if err := r.db.LogStepEvent(r.runID, ev); err != nil {
		r.log.Warn().Err(err).Str("run", r.runID).Str("step", ev.Step).Msg("could not record step event")
	}
}
