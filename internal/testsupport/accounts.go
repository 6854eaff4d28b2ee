package testsupport

import (
	"os"
	"testing"

	"syndicate/internal/accounts"
	"syndicate/internal/logging"
)

// WriteAccountsFile writes TOML content to the config's accounts path and
// returns a registry loaded from it.
func WriteAccountsFile(t testing.TB, path, content string) *accounts.Registry {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write accounts file: %v", err)
	}
	registry, err := accounts.Load(path, logging.NewNop())
	if err != nil {
		t.Fatalf("accounts.Load: %v", err)
	}
	return registry
}
