// Package web serves the run history as a read-only JSON API.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/db"
)

// Server is the read-only history API server.
type Server struct {
	db   *db.DB
	addr string
	log  zerolog.Logger

	// pollInterval is how often the event stream checks for new step events.
	pollInterval time.Duration
}

// NewServer creates a Server listening on addr once started.
func NewServer(database *db.DB, addr string, log zerolog.Logger) *Server {
	return &Server{
		db:           database,
		addr:         addr,
		log:          log,
		pollInterval: 2 * time.Second,
	}
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/runs/{id}/stream", s.handleRunStream)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	return s.logRequests(mux)
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	s.log.Info().Str("addr", s.addr).Msg("history API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
