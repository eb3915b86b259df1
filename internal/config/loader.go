package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the project settings file looked up in the working directory.
const FileName = "mcpforge.yaml"

// DefaultManifestURL is the launcher's version manifest.
const DefaultManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

// DefaultRepositories are tried in order when resolving maven artifacts.
var DefaultRepositories = []string{
	"https://maven.minecraftforge.net/",
	"https://libraries.minecraft.net/",
	"https://repo1.maven.org/maven2/",
}

// Load reads and parses settings from the given YAML file path and fills in
// defaults for everything left unset.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	applyDefaults(&s)
	return &s, nil
}

// LoadDefault loads the first settings file found in the standard locations:
// ./mcpforge.yaml, ~/.mcpforge/config.yaml. Without one it returns defaults.
func LoadDefault() (*Settings, string, error) {
	for _, path := range Candidates() {
		if _, err := os.Stat(path); err == nil {
			s, err := Load(path)
			return s, path, err
		}
	}
	s := &Settings{}
	applyDefaults(s)
	return s, "", nil
}

// Candidates lists the locations LoadDefault searches.
func Candidates() []string {
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".mcpforge", "config.yaml"))
	}
	return candidates
}

func applyDefaults(s *Settings) {
	home := homeDir()
	if s.Root == "" {
		s.Root = filepath.Join("build", "mcp")
	}
	if s.CacheDir == "" {
		s.CacheDir = filepath.Join(home, "cache")
	}
	if s.Database == "" {
		s.Database = filepath.Join(home, "mcpforge.db")
	}
	if s.Java == "" {
		s.Java = "java"
	}
	if s.ManifestURL == "" {
		s.ManifestURL = DefaultManifestURL
	}
	if len(s.Repositories) == 0 {
		s.Repositories = append([]string(nil), DefaultRepositories...)
	}
	if s.Download.Retries == 0 {
		s.Download.Retries = 3
	}
	if s.Download.Timeout == "" {
		s.Download.Timeout = "5m"
	}
	if s.Download.Backoff == "" {
		s.Download.Backoff = "1s"
	}
}

// homeDir is ~/.mcpforge, or .mcpforge when the home directory is unknown.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcpforge"
	}
	return filepath.Join(home, ".mcpforge")
}
