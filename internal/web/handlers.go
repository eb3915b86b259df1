package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lucasnoah/mcpforge/internal/analytics"
	"github.com/lucasnoah/mcpforge/internal/db"
)

// ---- view models ----

type RunView struct {
	ID         string `json:"id"`
	Config     string `json:"config"`
	Side       string `json:"side"`
	MCVersion  string `json:"mc_version"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	StartedAgo string `json:"started_ago"`
	FinishedAt string `json:"finished_at,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

type EventView struct {
	Step     string `json:"step"`
	Type     string `json:"type"`
	Event    string `json:"event"`
	Duration string `json:"duration,omitempty"`
	Output   string `json:"output,omitempty"`
	Detail   string `json:"detail,omitempty"`
	At       string `json:"at"`
}

type RunDetail struct {
	Run    RunView     `json:"run"`
	Events []EventView `json:"events"`
}

type Stats struct {
	Runs      analytics.RunSummary        `json:"runs"`
	Durations []analytics.StepDuration    `json:"durations"`
	Failures  []analytics.StepFailureRate `json:"failures"`
}

// ---- handlers ----

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, runView(run))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.db.GetRun(id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	events, err := s.db.StepEvents(id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	detail := RunDetail{Run: runView(*run), Events: make([]EventView, 0, len(events))}
	for _, e := range events {
		detail.Events = append(detail.Events, eventView(e))
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	var stats Stats
	var err error
	if stats.Runs, err = analytics.QueryRunSummary(s.db, since); err != nil {
		s.internalError(w, err)
		return
	}
	if stats.Durations, err = analytics.QueryStepDurations(s.db, since); err != nil {
		s.internalError(w, err)
		return
	}
	if stats.Failures, err = analytics.QueryStepFailureRates(s.db, since); err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func runView(r db.Run) RunView {
	return RunView{
		ID:         r.ID,
		Config:     r.Config,
		Side:       r.Side,
		MCVersion:  r.MCVersion,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		StartedAgo: relTime(r.StartedAt),
		FinishedAt: r.FinishedAt,
		Output:     r.Output,
		Error:      r.Error,
	}
}

func eventView(e db.StepEvent) EventView {
	v := EventView{
		Step:   e.Step,
		Type:   e.Type,
		Event:  e.Event,
		Output: e.Output,
		Detail: e.Detail,
		At:     e.Timestamp,
	}
	if e.Event != "started" {
		v.Duration = (time.Duration(e.DurationMs) * time.Millisecond).String()
	}
	return v
}

// relTime renders a stored timestamp relative to now, or returns it as is
// when it does not parse.
func relTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("history query failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
