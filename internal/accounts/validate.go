package accounts

import (
	"fmt"
	"os"
	"strings"
)

// statusFor runs the declarative per-platform checks for one account. The
// checks are structural plus environment lookups; no network calls happen here.
func statusFor(account Account) (Status, string) {
	if account.Manual {
		return StatusManualRequired, "account is marked manual"
	}
	if missing := missingField(account); missing != "" {
		return StatusInvalidConfig, fmt.Sprintf("%s is required", missing)
	}
	if account.CredentialEnv != "" {
		if value, ok := os.LookupEnv(account.CredentialEnv); !ok || strings.TrimSpace(value) == "" {
			return StatusMissingEnv, fmt.Sprintf("environment variable %s is not set", account.CredentialEnv)
		}
	}
	if account.TokenFile != "" {
		if _, err := os.Stat(account.TokenFile); err != nil {
			return StatusMissingEnv, fmt.Sprintf("token file %s is not readable", account.TokenFile)
		}
	}
	return StatusOK, ""
}

// missingField returns the name of the first required field an account lacks.
func missingField(account Account) string {
	if account.CredentialEnv == "" && account.TokenFile == "" {
		return "credential_env"
	}
	// expected_identity stays optional everywhere: adapters skip the identity
	// check when it is empty.
	if account.Platform == PlatformFeed && account.BaseURL == "" {
		return "base_url"
	}
	return ""
}

// Validate resolves the status of every configured account across all
// platforms, in presentation order. Used by the accounts validate command.
func (s *Snapshot) Validate() []AccountStatus {
	var out []AccountStatus
	for _, platform := range s.Platforms() {
		out = append(out, s.ListAccounts(platform)...)
	}
	return out
}
