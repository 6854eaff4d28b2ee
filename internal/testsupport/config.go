// Package testsupport provides shared helpers for package tests: temp-dir
// backed configs, store construction, and a scriptable platform adapter.
package testsupport

import (
	"path/filepath"
	"testing"

	"syndicate/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test and
// intervals small enough for fast polling tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.AccountsFile = filepath.Join(base, "accounts.toml")
	cfg.Upload.MaxAttempts = 3
	cfg.Upload.RetryBackoffBase = 1
	cfg.Upload.RetryBackoffCap = 8
	cfg.Upload.PublishTimeout = 30
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithMaxAttempts overrides the retry budget on the test config.
func WithMaxAttempts(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.MaxAttempts = n
	}
}

// WithPublishTimeout overrides the per-call publish timeout, in seconds.
func WithPublishTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.PublishTimeout = seconds
	}
}
