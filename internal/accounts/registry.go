package accounts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/pelletier/go-toml/v2"

	"syndicate/internal/logging"
)

// LegacyCredentialEnv backs the single-account fallback used when no accounts
// file exists.
const LegacyCredentialEnv = "SYNDICATE_YOUTUBE_TOKEN"

// Registry owns the current account configuration snapshot. Reload replaces
// the snapshot atomically; callers capture a snapshot once per dispatch and
// keep using it even if a reload lands mid-flight.
type Registry struct {
	path   string
	logger *slog.Logger
	snap   atomic.Pointer[Snapshot]
}

// Load reads the accounts file at path and builds a registry. A missing file
// is not an error: the registry falls back to a single legacy YouTube account
// and logs a warning.
func Load(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	registry := &Registry{path: path, logger: logger.With(logging.String(logging.FieldComponent, "accounts"))}
	if err := registry.Reload(); err != nil {
		return nil, err
	}
	return registry, nil
}

// Reload re-reads the accounts file and swaps the snapshot atomically.
func (r *Registry) Reload() error {
	snap, err := loadSnapshot(r.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		r.logger.Warn("accounts file not found; using legacy single-account mode",
			logging.String("path", r.path),
			logging.String("credential_env", LegacyCredentialEnv),
		)
		snap = legacySnapshot()
	}
	for _, warning := range snap.warnings {
		r.logger.Warn(warning)
	}
	r.snap.Store(snap)
	return nil
}

// Snapshot returns the current immutable configuration snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Path returns the accounts file location backing this registry.
func (r *Registry) Path() string {
	return r.path
}

// Snapshot is an immutable view of the account configuration.
type Snapshot struct {
	accounts map[Platform][]Account
	warnings []string
	legacy   bool
}

// accountEntry is the on-disk shape of one account in accounts.toml. Each
// platform maps to an array of tables so declaration order is preserved.
type accountEntry struct {
	ID               string   `toml:"id"`
	Description      string   `toml:"description"`
	CredentialEnv    string   `toml:"credential_env"`
	TokenFile        string   `toml:"token_file"`
	ExpectedIdentity string   `toml:"expected_identity"`
	BaseURL          string   `toml:"base_url"`
	SubPlatform      string   `toml:"sub_platform"`
	DefaultFor       []string `toml:"default_for"`
	Manual           bool     `toml:"manual"`
}

func loadSnapshot(path string) (*Snapshot, error) {
	if path == "" {
		return nil, fs.ErrNotExist
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fs.ErrNotExist
		}
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var parsed map[string][]accountEntry
	if err := toml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	snap := &Snapshot{accounts: make(map[Platform][]Account, len(parsed))}
	for rawPlatform, entries := range parsed {
		platform, ok := ParsePlatform(rawPlatform)
		if !ok {
			return nil, fmt.Errorf("accounts file: unknown platform %q", rawPlatform)
		}
		seen := make(map[string]struct{}, len(entries))
		for i, entry := range entries {
			account, err := buildAccount(platform, i, entry)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[account.ID]; dup {
				return nil, fmt.Errorf("accounts file: duplicate account id %q for platform %s", account.ID, platform)
			}
			seen[account.ID] = struct{}{}
			snap.accounts[platform] = append(snap.accounts[platform], account)
		}
	}
	snap.warnings = collectDefaultWarnings(snap)
	return snap, nil
}

func buildAccount(platform Platform, index int, entry accountEntry) (Account, error) {
	if entry.ID == "" {
		return Account{}, fmt.Errorf("accounts file: %s account at position %d is missing an id", platform, index+1)
	}
	account := Account{
		Platform:         platform,
		ID:               entry.ID,
		Description:      entry.Description,
		CredentialEnv:    entry.CredentialEnv,
		TokenFile:        entry.TokenFile,
		ExpectedIdentity: entry.ExpectedIdentity,
		BaseURL:          entry.BaseURL,
		SubPlatform:      entry.SubPlatform,
		Manual:           entry.Manual,
	}
	for _, rawKind := range entry.DefaultFor {
		kind, ok := ParseKind(rawKind)
		if !ok {
			return Account{}, fmt.Errorf("accounts file: account %s/%s declares unknown kind %q", platform, entry.ID, rawKind)
		}
		account.DefaultFor = append(account.DefaultFor, kind)
	}
	return account, nil
}

func collectDefaultWarnings(snap *Snapshot) []string {
	var warnings []string
	for _, platform := range knownPlatforms {
		for _, kind := range []Kind{KindLong, KindShorts} {
			var declared []string
			for _, account := range snap.accounts[platform] {
				if account.DeclaresDefault(kind) {
					declared = append(declared, account.ID)
				}
			}
			if len(declared) > 1 {
				warnings = append(warnings, fmt.Sprintf(
					"multiple %s accounts declare default_for %q (%v); first declared %q wins",
					platform, kind, declared, declared[0],
				))
			}
		}
	}
	return warnings
}

func legacySnapshot() *Snapshot {
	return &Snapshot{
		accounts: map[Platform][]Account{
			PlatformYouTube: {{
				Platform:      PlatformYouTube,
				ID:            "default",
				Description:   "legacy single-account mode",
				CredentialEnv: LegacyCredentialEnv,
				DefaultFor:    []Kind{KindLong, KindShorts},
			}},
		},
		legacy: true,
	}
}

// Legacy reports whether the snapshot came from the single-account fallback.
func (s *Snapshot) Legacy() bool {
	return s.legacy
}

// Warnings returns validation warnings collected while building the snapshot.
func (s *Snapshot) Warnings() []string {
	cp := make([]string, len(s.warnings))
	copy(cp, s.warnings)
	return cp
}

// Platforms returns the platforms that have at least one configured account,
// in the fixed presentation order.
func (s *Snapshot) Platforms() []Platform {
	var platforms []Platform
	for _, platform := range knownPlatforms {
		if len(s.accounts[platform]) > 0 {
			platforms = append(platforms, platform)
		}
	}
	return platforms
}

// Lookup returns the account with the given id, if configured.
func (s *Snapshot) Lookup(platform Platform, accountID string) (Account, bool) {
	for _, account := range s.accounts[platform] {
		if account.ID == accountID {
			return account, true
		}
	}
	return Account{}, false
}

// ResolveDefault picks the account to use for a platform/kind pair. If exactly
// one account declares the kind in default_for it wins; with none, the first
// declared account is used; with several, the first declared of them wins.
func (s *Snapshot) ResolveDefault(platform Platform, kind Kind) (string, bool) {
	accounts := s.accounts[platform]
	if len(accounts) == 0 {
		return "", false
	}
	for _, account := range accounts {
		if account.DeclaresDefault(kind) {
			return account.ID, true
		}
	}
	return accounts[0].ID, true
}

// ListAccounts returns the configured accounts for a platform in declared
// order, each paired with its resolved status.
func (s *Snapshot) ListAccounts(platform Platform) []AccountStatus {
	accounts := s.accounts[platform]
	out := make([]AccountStatus, 0, len(accounts))
	for _, account := range accounts {
		status, detail := statusFor(account)
		out = append(out, AccountStatus{Account: account, Status: status, Detail: detail})
	}
	return out
}

// Status resolves the usability status of one account. Unknown accounts
// report StatusMissingConfig.
func (s *Snapshot) Status(platform Platform, accountID string) Status {
	account, ok := s.Lookup(platform, accountID)
	if !ok {
		return StatusMissingConfig
	}
	status, _ := statusFor(account)
	return status
}
