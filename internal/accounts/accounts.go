package accounts

import (
	"strings"
)

// Platform identifies a platform family an account publishes to.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTikTok  Platform = "tiktok"
	PlatformFeed    Platform = "feed"
)

// knownPlatforms fixes the presentation order for snapshots and validation output.
var knownPlatforms = []Platform{PlatformYouTube, PlatformTikTok, PlatformFeed}

// ParsePlatform converts a string into a known Platform.
func ParsePlatform(value string) (Platform, bool) {
	normalized := Platform(strings.ToLower(strings.TrimSpace(value)))
	for _, platform := range knownPlatforms {
		if platform == normalized {
			return platform, true
		}
	}
	return "", false
}

// KnownPlatforms returns the ordered list of supported platform families.
func KnownPlatforms() []Platform {
	cp := make([]Platform, len(knownPlatforms))
	copy(cp, knownPlatforms)
	return cp
}

// Kind is the publish format variant affecting metadata shaping and
// default-account resolution.
type Kind string

const (
	KindLong   Kind = "long"
	KindShorts Kind = "shorts"
)

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindLong:
		return KindLong, true
	case KindShorts:
		return KindShorts, true
	default:
		return "", false
	}
}

// Status classifies the usability of a configured account.
type Status string

const (
	StatusOK             Status = "ok"
	StatusMissingConfig  Status = "missing_config"
	StatusMissingEnv     Status = "missing_env"
	StatusInvalidConfig  Status = "invalid_config"
	StatusManualRequired Status = "manual_required"
)

// Account is one configured publishing identity on one platform. Accounts are
// immutable for the lifetime of the snapshot that produced them.
type Account struct {
	Platform         Platform
	ID               string
	Description      string
	CredentialEnv    string
	TokenFile        string
	ExpectedIdentity string
	BaseURL          string
	SubPlatform      string
	DefaultFor       []Kind
	Manual           bool
}

// DeclaresDefault reports whether the account lists kind in default_for.
func (a Account) DeclaresDefault(kind Kind) bool {
	for _, declared := range a.DefaultFor {
		if declared == kind {
			return true
		}
	}
	return false
}

// AccountStatus pairs an account with its resolved status for operator output.
type AccountStatus struct {
	Account Account
	Status  Status
	// Detail names the exact missing field or environment variable when the
	// status is not OK.
	Detail string
}
