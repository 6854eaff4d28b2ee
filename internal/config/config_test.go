package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"syndicate/internal/config"
)

func TestDefaultSatisfiesValidation(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
	if cfg.Upload.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Upload.MaxAttempts)
	}
	if cfg.Upload.RetryBackoffBase != 30 || cfg.Upload.RetryBackoffCap != 1800 {
		t.Errorf("backoff defaults = %d/%d", cfg.Upload.RetryBackoffBase, cfg.Upload.RetryBackoffCap)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Errorf("logging defaults = %s/%s", cfg.Logging.Format, cfg.Logging.Level)
	}
}

func TestLoadAppliesOverridesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"
log_dir = "~/syndicate-logs"

[upload]
max_attempts = 2
publish_timeout = 60

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as found")
	}
	if resolved != configPath {
		t.Fatalf("resolved path = %q, want %q", resolved, configPath)
	}
	if cfg.Upload.MaxAttempts != 2 || cfg.Upload.PublishTimeout != 60 {
		t.Errorf("upload overrides not applied: %+v", cfg.Upload)
	}
	// Unset keys keep their defaults.
	if cfg.Upload.RetryBackoffBase != 30 {
		t.Errorf("retry_backoff_base = %d, want default 30", cfg.Upload.RetryBackoffBase)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Errorf("logging values not lowercased: %+v", cfg.Logging)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Paths.LogDir != filepath.Join(home, "syndicate-logs") {
		t.Errorf("log_dir = %q, tilde not expanded", cfg.Paths.LogDir)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Errorf("data_dir = %q, want absolute", cfg.Paths.DataDir)
	}
}

func TestLoadMissingExplicitPathFallsBackToDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	cfg, resolved, exists, err := config.Load(missing)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as existing")
	}
	if resolved != missing {
		t.Fatalf("resolved path = %q", resolved)
	}
	if cfg.Upload.MaxAttempts != config.Default().Upload.MaxAttempts {
		t.Errorf("defaults not applied: %+v", cfg.Upload)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "zero attempts",
			content: "[upload]\nmax_attempts = 0\n",
			wantMsg: "upload.max_attempts must be positive",
		},
		{
			name:    "inverted backoff",
			content: "[upload]\nretry_backoff_base = 600\nretry_backoff_cap = 60\n",
			wantMsg: "retry_backoff_cap must be at least",
		},
		{
			name:    "bad log format",
			content: "[logging]\nformat = \"yaml\"\n",
			wantMsg: "logging.format",
		},
		{
			name:    "bad log level",
			content: "[logging]\nlevel = \"loud\"\n",
			wantMsg: "logging.level",
		},
		{
			name:    "empty data dir",
			content: "[paths]\ndata_dir = \"\"\n",
			wantMsg: "paths.data_dir must be set",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantMsg)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"empty passthrough", "", ""},
		{"bare tilde", "~", home},
		{"tilde prefix", "~/media/out", filepath.Join(home, "media", "out")},
		{"cleans dot segments", "/var/lib/../tmp", "/var/tmp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := config.ExpandPath(tc.input)
			if err != nil {
				t.Fatalf("ExpandPath(%q): %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("ExpandPath(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.LogDir = filepath.Join(dir, "logs", "nested")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, d := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %q not created: %v", d, err)
		}
	}
}
