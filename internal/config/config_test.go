package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validSettings = `
root: out/mcp
cache_dir: /var/cache/mcpforge
database: postgres://mcp@localhost/mcpforge
java: /opt/jdk17/bin/java
offline: true
repositories:
  - https://maven.example.com/releases/
download:
  retries: 5
  timeout: 30s
  backoff: 250ms
exec:
  allow_nonzero_exit: true
  timeout: 20m
`

func writeTestSettings(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidSettings(t *testing.T) {
	s, err := Load(writeTestSettings(t, validSettings))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if s.Root != "out/mcp" {
		t.Errorf("Root = %q, want %q", s.Root, "out/mcp")
	}
	if s.Java != "/opt/jdk17/bin/java" {
		t.Errorf("Java = %q, want %q", s.Java, "/opt/jdk17/bin/java")
	}
	if !s.Offline {
		t.Error("Offline = false, want true")
	}
	if len(s.Repositories) != 1 || s.Repositories[0] != "https://maven.example.com/releases/" {
		t.Errorf("Repositories = %v, want the single configured repository", s.Repositories)
	}
	if s.Download.Retries != 5 {
		t.Errorf("Download.Retries = %d, want 5", s.Download.Retries)
	}
	if got := s.Download.BackoffDuration(); got != 250*time.Millisecond {
		t.Errorf("BackoffDuration() = %v, want 250ms", got)
	}
	if got := s.Exec.TimeoutDuration(); got != 20*time.Minute {
		t.Errorf("Exec.TimeoutDuration() = %v, want 20m", got)
	}
	if !s.Exec.AllowNonzeroExit {
		t.Error("Exec.AllowNonzeroExit = false, want true")
	}
}

func TestDefaultsApplied(t *testing.T) {
	s, err := Load(writeTestSettings(t, "offline: false\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if s.Root != filepath.Join("build", "mcp") {
		t.Errorf("Root = %q, want build/mcp", s.Root)
	}
	if s.Java != "java" {
		t.Errorf("Java = %q, want %q", s.Java, "java")
	}
	if s.ManifestURL != DefaultManifestURL {
		t.Errorf("ManifestURL = %q, want %q", s.ManifestURL, DefaultManifestURL)
	}
	if len(s.Repositories) != len(DefaultRepositories) {
		t.Errorf("Repositories = %v, want %v", s.Repositories, DefaultRepositories)
	}
	if s.Download.Retries != 3 {
		t.Errorf("Download.Retries = %d, want 3", s.Download.Retries)
	}
	if got := s.Download.TimeoutDuration(); got != 5*time.Minute {
		t.Errorf("Download.TimeoutDuration() = %v, want 5m", got)
	}
	if got := s.Exec.TimeoutDuration(); got != 0 {
		t.Errorf("Exec.TimeoutDuration() = %v, want 0 (no limit)", got)
	}
	if !strings.HasSuffix(s.Database, "mcpforge.db") {
		t.Errorf("Database = %q, want a path ending in mcpforge.db", s.Database)
	}
}

func TestDefaultRepositoriesNotShared(t *testing.T) {
	a, _ := Load(writeTestSettings(t, "java: java\n"))
	b, _ := Load(writeTestSettings(t, "java: java\n"))
	a.Repositories[0] = "https://changed.example.com/"
	if b.Repositories[0] == a.Repositories[0] {
		t.Error("settings share the default repository slice")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() of a missing file returned nil error")
	}
	if !strings.Contains(err.Error(), "reading settings file") {
		t.Errorf("error = %v, want it to mention reading", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeTestSettings(t, "root: [unterminated\n"))
	if err == nil {
		t.Fatal("Load() of invalid YAML returned nil error")
	}
	if !strings.Contains(err.Error(), "parsing settings YAML") {
		t.Errorf("error = %v, want it to mention parsing", err)
	}
}

func TestLoadDefaultFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	s, path, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty when no file exists", path)
	}
	if s.Java != "java" {
		t.Errorf("Java = %q, want default", s.Java)
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("java: /usr/bin/java\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s, path, err = LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if path != FileName {
		t.Errorf("path = %q, want %q", path, FileName)
	}
	if s.Java != "/usr/bin/java" {
		t.Errorf("Java = %q, want %q", s.Java, "/usr/bin/java")
	}
}

func TestValidateValidSettings(t *testing.T) {
	s, err := Load(writeTestSettings(t, validSettings))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(s)
	if len(errs) != 0 {
		t.Errorf("Validate() returned %d errors for valid settings:", len(errs))
		for _, e := range errs {
			t.Errorf("  - %s", e)
		}
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	yaml := `
repositories:
  - ftp://maven.example.com/
  - not a url
manifest_url: "https://"
download:
  retries: -1
  timeout: soon
exec:
  timeout: -5s
`
	s, err := Load(writeTestSettings(t, yaml))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := map[string]bool{
		"repositories[0]":  false,
		"repositories[1]":  false,
		"manifest_url":     false,
		"download.retries": false,
		"download.timeout": false,
		"exec.timeout":     false,
	}
	for _, e := range Validate(s) {
		if _, ok := want[e.Field]; !ok {
			t.Errorf("unexpected validation error %s", e)
			continue
		}
		want[e.Field] = true
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected validation error for %s", field)
		}
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "root", Message: "is required"}
	if e.Error() != "root: is required" {
		t.Errorf("Error() = %q, want %q", e.Error(), "root: is required")
	}
}
