package testsupport

import (
	"context"
	"testing"

	"syndicate/internal/accounts"
	"syndicate/internal/config"
	"syndicate/internal/fingerprint"
	"syndicate/internal/targets"
)

// MustOpenStore opens a targets.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *targets.Store {
	t.Helper()

	store, err := targets.Open(cfg)
	if err != nil {
		t.Fatalf("targets.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedTarget enqueues a target with a computed fingerprint and fails the test
// if the enqueue was deduplicated.
func SeedTarget(t testing.TB, store *targets.Store, platform accounts.Platform, accountID string, kind accounts.Kind, artifact string) *targets.Target {
	t.Helper()

	target, created, err := store.Enqueue(context.Background(), targets.NewTarget{
		Platform:     platform,
		AccountID:    accountID,
		Kind:         kind,
		ArtifactPath: artifact,
		Title:        "test title",
		Visibility:   "private",
		Fingerprint:  fingerprint.Compute(artifact, platform, accountID, kind),
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	if !created {
		t.Fatalf("store.Enqueue deduplicated seed target for %s/%s", platform, accountID)
	}
	return target
}
