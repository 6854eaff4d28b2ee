package publisher_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"syndicate/internal/accounts"
	"syndicate/internal/publisher"
)

func TestResolveFromEnvReadsNamedVariable(t *testing.T) {
	t.Setenv("RESOLVE_TEST_TOKEN", "  the-token \n")

	creds, err := publisher.ResolveFromEnv(accounts.Account{
		Platform:      accounts.PlatformYouTube,
		ID:            "main",
		CredentialEnv: "RESOLVE_TEST_TOKEN",
	})
	if err != nil {
		t.Fatalf("ResolveFromEnv: %v", err)
	}
	if creds.AccessToken != "the-token" {
		t.Fatalf("token = %q, want trimmed value", creds.AccessToken)
	}
}

func TestResolveFromEnvMissingVariableNamesIt(t *testing.T) {
	_, err := publisher.ResolveFromEnv(accounts.Account{
		Platform:      accounts.PlatformYouTube,
		ID:            "main",
		CredentialEnv: "RESOLVE_TEST_UNSET",
	})
	if !errors.Is(err, publisher.ErrMissingEnv) {
		t.Fatalf("expected ErrMissingEnv, got %v", err)
	}
	if !strings.Contains(err.Error(), "RESOLVE_TEST_UNSET") {
		t.Fatalf("error should name the variable: %v", err)
	}
}

func TestResolveFromEnvTokenFileFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("file-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := publisher.ResolveFromEnv(accounts.Account{
		Platform:  accounts.PlatformTikTok,
		ID:        "brand",
		TokenFile: path,
	})
	if err != nil {
		t.Fatalf("ResolveFromEnv: %v", err)
	}
	if creds.AccessToken != "file-token" {
		t.Fatalf("token = %q", creds.AccessToken)
	}
}

func TestResolveFromEnvEmptyTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := publisher.ResolveFromEnv(accounts.Account{Platform: accounts.PlatformTikTok, ID: "brand", TokenFile: path})
	if !errors.Is(err, publisher.ErrMissingEnv) {
		t.Fatalf("expected ErrMissingEnv for empty token file, got %v", err)
	}
}

func TestResolveFromEnvManualAccount(t *testing.T) {
	_, err := publisher.ResolveFromEnv(accounts.Account{Platform: accounts.PlatformFeed, ID: "zine", Manual: true})
	if !errors.Is(err, publisher.ErrManualRequired) {
		t.Fatalf("expected ErrManualRequired, got %v", err)
	}
}

func TestResolveFromEnvNoCredentialReference(t *testing.T) {
	_, err := publisher.ResolveFromEnv(accounts.Account{Platform: accounts.PlatformFeed, ID: "bare"})
	if !errors.Is(err, publisher.ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
}

func TestRegistryLookup(t *testing.T) {
	adapter := fakeAdapter{platform: accounts.PlatformYouTube}
	registry := publisher.NewRegistry(adapter)

	if _, ok := registry.Lookup(accounts.PlatformYouTube); !ok {
		t.Fatal("registered adapter not found")
	}
	if _, ok := registry.Lookup(accounts.PlatformTikTok); ok {
		t.Fatal("unregistered platform should not resolve")
	}
}

type fakeAdapter struct {
	publisher.Adapter
	platform accounts.Platform
}

func (f fakeAdapter) Platform() accounts.Platform { return f.platform }
