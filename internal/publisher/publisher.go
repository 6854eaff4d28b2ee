// Package publisher defines the uniform capability contract platform
// adapters implement, plus the shared error classification the upload manager
// interprets. One adapter exists per platform family; variants differ only in
// metadata mapping and the error conditions they can produce.
package publisher

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"syndicate/internal/accounts"
)

// Credentials is the resolved secret material for one publish attempt. The
// token value never appears in logs or the target store.
type Credentials struct {
	AccessToken string
	// Identity is the account identity the adapter resolved alongside the
	// token, when cheaply known (e.g. from a token file).
	Identity string
	// BaseURL is the account-level API host override, when the account
	// declares one. Adapters with a fixed default host fall back to it when
	// this is empty.
	BaseURL string
}

// PublishRequest carries the artifact reference and metadata for one publish.
type PublishRequest struct {
	ArtifactPath string
	Title        string
	Description  string
	Tags         []string
	Visibility   string
	PublishAt    *time.Time
	Kind         accounts.Kind
}

// Adapter is the capability contract: resolve credentials, verify the
// authenticated identity, publish. Identity verification runs before every
// publish attempt, retries included, because credentials can be rotated
// between attempts.
type Adapter interface {
	Platform() accounts.Platform
	ResolveAccount(ctx context.Context, account accounts.Account) (Credentials, error)
	VerifyIdentity(ctx context.Context, creds Credentials, expectedIdentity string) error
	Publish(ctx context.Context, creds Credentials, req PublishRequest) (externalID string, err error)
}

// Registry maps platform families to their adapter implementations. Selection
// happens by the target's platform field, never by runtime type inspection.
type Registry struct {
	adapters map[accounts.Platform]Adapter
}

// NewRegistry builds a registry from the provided adapters. A later adapter
// for the same platform replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[accounts.Platform]Adapter, len(adapters))}
	for _, adapter := range adapters {
		registry.adapters[adapter.Platform()] = adapter
	}
	return registry
}

// Lookup returns the adapter registered for a platform.
func (r *Registry) Lookup(platform accounts.Platform) (Adapter, bool) {
	adapter, ok := r.adapters[platform]
	return adapter, ok
}

// ResolveFromEnv is the shared credential resolution used by adapters: manual
// accounts yield ErrManualRequired without touching the environment, then the
// named environment variable and optional token file are read. No network I/O
// happens here.
func ResolveFromEnv(account accounts.Account) (Credentials, error) {
	if account.Manual {
		return Credentials{}, Wrap(ErrManualRequired, string(account.Platform), "resolve account",
			fmt.Sprintf("account %s is marked manual", account.ID), nil)
	}
	if account.CredentialEnv == "" && account.TokenFile == "" {
		return Credentials{}, Wrap(ErrMissingConfig, string(account.Platform), "resolve account",
			fmt.Sprintf("account %s has no credential reference", account.ID), nil)
	}

	var creds Credentials
	if account.CredentialEnv != "" {
		value, ok := os.LookupEnv(account.CredentialEnv)
		if !ok || strings.TrimSpace(value) == "" {
			return Credentials{}, Wrap(ErrMissingEnv, string(account.Platform), "resolve account",
				fmt.Sprintf("environment variable %s is not set", account.CredentialEnv), nil)
		}
		creds.AccessToken = strings.TrimSpace(value)
	}
	if creds.AccessToken == "" && account.TokenFile != "" {
		raw, err := os.ReadFile(account.TokenFile)
		if err != nil {
			return Credentials{}, Wrap(ErrMissingEnv, string(account.Platform), "resolve account",
				fmt.Sprintf("token file %s is not readable", account.TokenFile), err)
		}
		creds.AccessToken = strings.TrimSpace(string(raw))
		if creds.AccessToken == "" {
			return Credentials{}, Wrap(ErrMissingEnv, string(account.Platform), "resolve account",
				fmt.Sprintf("token file %s is empty", account.TokenFile), nil)
		}
	}
	return creds, nil
}
