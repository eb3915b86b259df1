// Package analytics summarises the run history: how long steps take, how
// often they fail and how many runs succeed.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

// StepDuration holds duration stats for one step type, in seconds.
type StepDuration struct {
	Type  string  `json:"type"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_seconds"`
	P50   float64 `json:"p50_seconds"`
	P95   float64 `json:"p95_seconds"`
	Max   float64 `json:"max_seconds"`
}

// QueryStepDurations returns average and percentile durations of finished
// steps, grouped by function type. since filters on the event timestamp.
func QueryStepDurations(database DB, since string) ([]StepDuration, error) {
	query := `SELECT type, duration_ms FROM step_events WHERE event = 'finished' AND duration_ms IS NOT NULL`
	var args []any
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query step durations: %w", err)
	}
	defer rows.Close()

	byType := make(map[string][]float64)
	for rows.Next() {
		var typ string
		var ms int64
		if err := rows.Scan(&typ, &ms); err != nil {
			return nil, fmt.Errorf("scan step duration: %w", err)
		}
		byType[typ] = append(byType[typ], float64(ms)/1000)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StepDuration
	for typ, durations := range byType {
		sort.Float64s(durations)
		results = append(results, StepDuration{
			Type:  typ,
			Count: len(durations),
			Avg:   avg(durations),
			P50:   percentile(durations, 50),
			P95:   percentile(durations, 95),
			Max:   math.Round(durations[len(durations)-1]*10) / 10,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Type < results[j].Type
	})
	return results, nil
}

// StepFailureRate holds how often steps of one type fail.
type StepFailureRate struct {
	Type     string  `json:"type"`
	Total    int     `json:"total"`
	Failed   int     `json:"failed"`
	FailRate float64 `json:"fail_pct"`
}

// QueryStepFailureRates returns the failure percentage per function type,
// most failing first.
func QueryStepFailureRates(database DB, since string) ([]StepFailureRate, error) {
	query := `
		SELECT type,
			COUNT(*) as total,
			SUM(CASE WHEN event = 'failed' THEN 1 ELSE 0 END) as failed
		FROM step_events
		WHERE event IN ('finished', 'failed')`
	var args []any
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY type`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query step failure rates: %w", err)
	}
	defer rows.Close()

	var results []StepFailureRate
	for rows.Next() {
		var r StepFailureRate
		if err := rows.Scan(&r.Type, &r.Total, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan step failure rate: %w", err)
		}
		r.FailRate = pct(r.Failed, r.Total)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FailRate != results[j].FailRate {
			return results[i].FailRate > results[j].FailRate
		}
		return results[i].Type < results[j].Type
	})
	return results, nil
}

// RunSummary counts runs by outcome.
type RunSummary struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	Running     int     `json:"running"`
	SuccessRate float64 `json:"success_pct"`
}

// QueryRunSummary counts runs started at or after since.
func QueryRunSummary(database DB, since string) (RunSummary, error) {
	query := `SELECT status, COUNT(*) FROM runs`
	var args []any
	if since != "" {
		query += ` WHERE started_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY status`

	var s RunSummary
	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return s, fmt.Errorf("query run summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return s, fmt.Errorf("scan run summary: %w", err)
		}
		s.Total += n
		switch status {
		case "succeeded":
			s.Succeeded = n
		case "failed":
			s.Failed = n
		case "running":
			s.Running = n
		}
	}
	if err := rows.Err(); err != nil {
		return s, err
	}
	s.SuccessRate = pct(s.Succeeded, s.Succeeded+s.Failed)
	return s, nil
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
