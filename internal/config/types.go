package config

import "time"

// Settings is the project configuration parsed from mcpforge.yaml.
type Settings struct {
	// Root is the mcp working directory; each side runs below Root/<side>.
	Root string `yaml:"root"`
	// CacheDir holds resolved maven artifacts and generated mappings.
	CacheDir     string   `yaml:"cache_dir"`
	Database     string   `yaml:"database"`
	Java         string   `yaml:"java"`
	ManifestURL  string   `yaml:"manifest_url"`
	Repositories []string `yaml:"repositories"`
	Offline      bool     `yaml:"offline"`
	// InvalidateCache makes every hash store precheck miss.
	InvalidateCache bool     `yaml:"invalidate_cache"`
	Download        Download `yaml:"download"`
	Exec            Exec     `yaml:"exec"`
}

// Download tunes artifact and manifest downloads.
type Download struct {
	Retries int    `yaml:"retries"`
	Timeout string `yaml:"timeout"`
	Backoff string `yaml:"backoff"`
}

// Exec tunes external jar tools.
type Exec struct {
	AllowNonzeroExit bool   `yaml:"allow_nonzero_exit"`
	Timeout          string `yaml:"timeout"`
}

// TimeoutDuration parses Download.Timeout. Invalid values yield zero; use
// Validate to report them.
func (d Download) TimeoutDuration() time.Duration { return parseDuration(d.Timeout) }

// BackoffDuration parses Download.Backoff.
func (d Download) BackoffDuration() time.Duration { return parseDuration(d.Backoff) }

// TimeoutDuration parses Exec.Timeout. Empty means no limit.
func (e Exec) TimeoutDuration() time.Duration { return parseDuration(e.Timeout) }

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
