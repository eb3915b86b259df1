package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/mcp"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrate(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if d.Dialect() != SQLite {
		t.Errorf("Dialect() = %q, want %q", d.Dialect(), SQLite)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{"schema_version", "runs", "step_events"} {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var version int
	if err := d.conn.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}

	// Migrate again should be idempotent
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	id, err := d.StartRun("config.zip", "joined", "1.20.1")
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	d.Close()

	d, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d.Close()
	run, err := d.GetRun(id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run == nil || run.Config != "config.zip" {
		t.Errorf("run after reopen = %+v, want config.zip", run)
	}
}

func TestRebind(t *testing.T) {
	d := &DB{dialect: Postgres}
	got := d.Rebind("UPDATE runs SET status = ?, output = ? WHERE id = ?")
	want := "UPDATE runs SET status = $1, output = $2 WHERE id = $3"
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}

	d.dialect = SQLite
	if got := d.Rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite Rebind = %q, want unchanged", got)
	}
}

func TestRunLifecycle(t *testing.T) {
	d := testDB(t)

	id, err := d.StartRun("mcp_config-1.20.1.zip", "joined", "1.20.1")
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	run, err := d.GetRun(id)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != StatusRunning {
		t.Errorf("Status = %q, want %q", run.Status, StatusRunning)
	}
	if run.FinishedAt != "" {
		t.Errorf("FinishedAt = %q, want empty for a running run", run.FinishedAt)
	}

	if err := d.FinishRun(id, "/mcp/joined/strip/output.jar", nil); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	run, _ = d.GetRun(id)
	if run.Status != StatusSucceeded {
		t.Errorf("Status = %q, want %q", run.Status, StatusSucceeded)
	}
	if run.Output != "/mcp/joined/strip/output.jar" {
		t.Errorf("Output = %q", run.Output)
	}
	if run.FinishedAt == "" {
		t.Error("FinishedAt not set")
	}
}

func TestFinishRunFailed(t *testing.T) {
	d := testDB(t)
	id, _ := d.StartRun("c.zip", "client", "1.20.1")
	if err := d.FinishRun(id, "", errors.New("step \"strip\" (strip): boom")); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	run, _ := d.GetRun(id)
	if run.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", run.Status, StatusFailed)
	}
	if run.Error != "step \"strip\" (strip): boom" {
		t.Errorf("Error = %q", run.Error)
	}

	if err := d.FinishRun("missing", "", nil); err == nil {
		t.Error("FinishRun of an unknown run returned nil error")
	}
}

func TestGetRunMissing(t *testing.T) {
	d := testDB(t)
	run, err := d.GetRun("nope")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run != nil {
		t.Errorf("GetRun = %+v, want nil", run)
	}
}

func TestListRuns(t *testing.T) {
	d := testDB(t)
	var ids []string
	for _, side := range []string{"client", "server", "joined"} {
		id, err := d.StartRun("c.zip", side, "1.20.1")
		if err != nil {
			t.Fatalf("start run: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := d.ListRuns(0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[0].ID != ids[2] || runs[2].ID != ids[0] {
		t.Errorf("runs not newest first: %v", []string{runs[0].Side, runs[1].Side, runs[2].Side})
	}

	runs, err = d.ListRuns(2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("len(runs) with limit 2 = %d", len(runs))
	}
}

func TestRecorderLogsStepEvents(t *testing.T) {
	d := testDB(t)
	id, _ := d.StartRun("c.zip", "joined", "1.20.1")
	rec := d.Recorder(id, zerolog.Nop())

	rec.RecordStep(mcp.StepEvent{Side: "joined", Step: "downloadManifest", Type: "downloadManifest", Event: mcp.EventStarted})
	rec.RecordStep(mcp.StepEvent{Side: "joined", Step: "downloadManifest", Type: "downloadManifest", Event: mcp.EventFinished,
		Duration: 1500 * time.Millisecond, Output: "/mcp/joined/downloadManifest/manifest.json"})
	rec.RecordStep(mcp.StepEvent{Side: "joined", Step: "strip", Type: "strip", Event: mcp.EventFailed,
		Err: errors.New("missing argument")})

	events, err := d.StepEvents(id)
	if err != nil {
		t.Fatalf("step events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[1].Event != "finished" || events[1].DurationMs != 1500 {
		t.Errorf("events[1] = %+v, want finished after 1500ms", events[1])
	}
	if events[1].Output != "/mcp/joined/downloadManifest/manifest.json" {
		t.Errorf("events[1].Output = %q", events[1].Output)
	}
	if events[2].Event != "failed" || events[2].Detail != "missing argument" {
		t.Errorf("events[2] = %+v, want failed with detail", events[2])
	}
}

func TestRecorderSurvivesWriteErrors(t *testing.T) {
	d := testDB(t)
	rec := d.Recorder("no-such-run", zerolog.Nop())
	// The foreign key rejects the insert; the recorder must not panic.
	rec.RecordStep(mcp.StepEvent{Step: "a", Type: "strip", Event: mcp.EventStarted})

	events, err := d.StepEvents("no-such-run")
	if err != nil {
		t.Fatalf("step events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len(events) = %d, want 0", len(events))
	}
}

func TestReset(t *testing.T) {
	d := testDB(t)
	id, _ := d.StartRun("c.zip", "joined", "1.20.1")
	if err := d.LogStepEvent(id, mcp.StepEvent{Step: "a", Type: "strip", Event: mcp.EventStarted}); err != nil {
		t.Fatalf("log event: %v", err)
	}

	if err := d.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	runs, err := d.ListRuns(0)
	if err != nil {
		t.Fatalf("list runs after reset: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("len(runs) after reset = %d, want 0", len(runs))
	}
	if _, err := d.StartRun("c.zip", "joined", ""); err != nil {
		t.Errorf("start run after reset: %v", err)
	}
}
