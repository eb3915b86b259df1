package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/mcpforge/internal/config"
	"github.com/lucasnoah/mcpforge/internal/db"
	"github.com/lucasnoah/mcpforge/internal/functions"
	"github.com/lucasnoah/mcpforge/internal/mcp"
	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

var runCmd = &cobra.Command{
	Use:   "run <config.zip>",
	Short: "Run the pipelines of an MCP config",
	Long: `Run the shared stage of one or more sides of an MCP config and print the
final output of each. --sources also runs the src stage (decompile and
later). Sides listed together run concurrently in separate directories.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		log := cmdLogger(cmd)

		zipPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		cfg, err := mcpconfig.LoadFile(zipPath)
		if err != nil {
			return err
		}

		sidesFlag, _ := cmd.Flags().GetString("side")
		sources, _ := cmd.Flags().GetBool("sources")
		stopAfter, _ := cmd.Flags().GetString("stop-after")
		noHistory, _ := cmd.Flags().GetBool("no-history")
		if root, _ := cmd.Flags().GetString("root"); root != "" {
			s.Root = root
		}
		if inv, _ := cmd.Flags().GetBool("invalidate"); inv {
			s.InvalidateCache = true
		}

		sides := splitList(sidesFlag)
		if len(sides) == 0 {
			return fmt.Errorf("no side given (config has %s)", strings.Join(cfg.Sides(), ", "))
		}

		var database *db.DB
		if !noHistory {
			database, err = openDB(s)
			if err != nil {
				return err
			}
			defer database.Close()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		fetcher := newFetcher(s, log)
		resolver := newResolver(s, fetcher, log)
		deps := functions.Deps{
			Fetcher:          fetcher,
			Resolver:         resolver,
			ManifestURL:      s.ManifestURL,
			Java:             s.Java,
			Offline:          s.Offline,
			AllowNonzeroExit: s.Exec.AllowNonzeroExit,
			ExecTimeout:      s.Exec.TimeoutDuration(),
			Invalidate:       s.InvalidateCache,
		}
		opts := mcp.ExecuteOpts{Sources: sources, StopAfter: stopAfter}

		outputs := make([]string, len(sides))
		g, ctx := errgroup.WithContext(ctx)
		for i, side := range sides {
			g.Go(func() error {
				out, err := runSide(ctx, sideRun{
					settings: s,
					cfg:      cfg,
					zipPath:  zipPath,
					side:     side,
					deps:     deps,
					opts:     opts,
					db:       database,
					log:      log,
				})
				if err != nil {
					return fmt.Errorf("side %s: %w", side, err)
				}
				outputs[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for i, side := range sides {
			fmt.Fprintf(w, "%s: %s\n", side, outputs[i])
		}
		return nil
	},
}

type sideRun struct {
	settings *config.Settings
	cfg      *mcpconfig.ConfigV2
	zipPath  string
	side     string
	deps     functions.Deps
	opts     mcp.ExecuteOpts
	db       *db.DB
	log      zerolog.Logger
}

// runSide validates and executes one side with its own function registry,
// recording the run when a database is available.
func runSide(ctx context.Context, r sideRun) (string, error) {
	reg := mcp.NewRegistry()
	if err := functions.RegisterBuiltins(reg, r.deps); err != nil {
		return "", err
	}
	rc, err := mcp.Validate(r.cfg, r.side, reg)
	if err != nil {
		return "", err
	}

	rtOpts := mcp.Options{Root: r.settings.Root, ConfigZip: r.zipPath, Logger: r.log}
	var runID string
	if r.db != nil {
		runID, err = r.db.StartRun(r.zipPath, r.side, r.cfg.Version)
		if err != nil {
			return "", err
		}
		rtOpts.Recorder = r.db.Recorder(runID, r.log)
	}

	rt, err := mcp.NewRuntime(rc, rtOpts)
	if err != nil {
		return "", finish(r, runID, "", err)
	}
	out, err := rt.Execute(ctx, r.opts)
	return out, finish(r, runID, out, err)
}

// finish records the outcome of a run and returns runErr unchanged.
func finish(r sideRun, runID, output string, runErr error) error {
	if r.db == nil || runID == "" {
		return runErr
	}
	if err := r.db.FinishRun(runID, output, runErr); err != nil {
		r.log.Warn().Err(err).Str("run", runID).Msg("could not record run outcome")
	}
	return runErr
}

func splitList(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

func init() {
	runCmd.Flags().String("side", "joined", "comma separated sides to run")
	runCmd.Flags().Bool("sources", false, "also run the src stage")
	runCmd.Flags().String("stop-after", "", "stop after the named step")
	runCmd.Flags().String("root", "", "mcp working directory (overrides settings)")
	runCmd.Flags().Bool("no-history", false, "do not record the run in the database")
	runCmd.Flags().Bool("invalidate", false, "ignore cached step outputs")
}
