package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/mcpforge/internal/artifact"
	"github.com/lucasnoah/mcpforge/internal/config"
	"github.com/lucasnoah/mcpforge/internal/db"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	settingsFile string
	verbose      bool
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "mcpforge",
	Short: "mcpforge runs MCP config pipelines and builds mappings",
	Long: `mcpforge runs the pipelines of an MCP config archive (config.zip) to
produce a deobfuscated, SRG-named Minecraft jar, and builds the mappings.zip
files that describe the names of the official and crowd sourced channels.

Settings are read from ./mcpforge.yaml or ~/.mcpforge/config.yaml.
Run history is kept in SQLite (or Postgres when the database setting is a
postgres:// URL).`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "path to settings file (default: search ./mcpforge.yaml, ~/.mcpforge/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log output: console or json")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mappingsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadSettings reads the --settings file or the default locations and
// rejects invalid settings.
func loadSettings() (*config.Settings, error) {
	var s *config.Settings
	var err error
	if settingsFile != "" {
		s, err = config.Load(settingsFile)
	} else {
		s, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(s); len(errs) > 0 {
		return nil, fmt.Errorf("invalid settings: %s (and %d more)", errs[0], len(errs)-1)
	}
	return s, nil
}

// newLogger builds the process logger. Logs go to stderr so command output
// on stdout stays machine readable.
func newLogger(w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if logFormat == "json" {
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func cmdLogger(cmd *cobra.Command) zerolog.Logger {
	return newLogger(cmd.ErrOrStderr())
}

// openDB opens the history database and applies migrations.
func openDB(s *config.Settings) (*db.DB, error) {
	if !isURL(s.Database) {
		if err := os.MkdirAll(filepath.Dir(s.Database), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := db.Open(s.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}

func isURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func newFetcher(s *config.Settings, log zerolog.Logger) *artifact.HTTPFetcher {
	return artifact.NewHTTPFetcher(artifact.FetchOptions{
		Retries: s.Download.Retries,
		Backoff: s.Download.BackoffDuration(),
		Timeout: s.Download.TimeoutDuration(),
		Logger:  log,
	})
}

func newResolver(s *config.Settings, fetcher artifact.Fetcher, log zerolog.Logger) *artifact.MavenResolver {
	return &artifact.MavenResolver{
		CacheDir: filepath.Join(s.CacheDir, "maven"),
		Repos:    s.Repositories,
		Fetcher:  fetcher,
		Offline:  s.Offline,
		Log:      log,
	}
}
