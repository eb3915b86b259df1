package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/mcpforge/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run history as a JSON API",
	Long: `Start a read-only HTTP API over the recorded runs:

  GET /api/runs?limit=N        recent runs
  GET /api/runs/{id}           one run with its step events
  GET /api/runs/{id}/stream    step events as Server-Sent Events
  GET /api/stats?since=TS      durations, failure rates and outcomes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		database, err := openDB(s)
		if err != nil {
			return err
		}
		defer database.Close()

		addr, _ := cmd.Flags().GetString("addr")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return web.NewServer(database, addr, cmdLogger(cmd)).Start(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "localhost:8080", "address to listen on")
}
