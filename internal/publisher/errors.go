package publisher

import (
	"errors"
	"fmt"
	"strings"

	"syndicate/internal/targets"
)

// Sentinel markers for adapter failure classification. Adapters own the
// classification; the upload manager only inspects these markers.
var (
	ErrAuthMismatch     = errors.New("auth mismatch")
	ErrIdentityMismatch = errors.New("identity mismatch")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrMissingConfig    = errors.New("missing configuration")
	ErrMissingEnv       = errors.New("missing environment value")
	ErrManualRequired   = errors.New("manual intervention required")
	ErrRateLimited      = errors.New("rate limited")
	ErrTransient        = errors.New("transient network failure")
)

// Operator-facing error kind labels, persisted on targets and attempts.
const (
	KindAuthMismatch     = "AUTH_MISMATCH"
	KindIdentityMismatch = "IDENTITY_MISMATCH"
	KindInvalidConfig    = "INVALID_CONFIG"
	KindMissingConfig    = "MISSING_CONFIG"
	KindMissingEnv       = "MISSING_ENV"
	KindManualRequired   = "MANUAL_REQUIRED"
	KindRateLimited      = "RATE_LIMITED"
	KindTransient        = "TRANSIENT_NETWORK"
)

// Wrap builds an error message that includes platform context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, platform, operation, message string, err error) error {
	detail := buildDetail(platform, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps a classified error to its operator-facing label. Unclassified
// errors (including exceeded publish deadlines) are treated as transient.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAuthMismatch):
		return KindAuthMismatch
	case errors.Is(err, ErrIdentityMismatch):
		return KindIdentityMismatch
	case errors.Is(err, ErrInvalidConfig):
		return KindInvalidConfig
	case errors.Is(err, ErrMissingConfig):
		return KindMissingConfig
	case errors.Is(err, ErrMissingEnv):
		return KindMissingEnv
	case errors.Is(err, ErrManualRequired):
		return KindManualRequired
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindTransient
	}
}

// Retryable reports whether an error should consume retry budget and be
// rescheduled with backoff.
func Retryable(err error) bool {
	switch Kind(err) {
	case KindRateLimited, KindTransient:
		return true
	default:
		return false
	}
}

// FailureState maps a classified publish error to the target state the upload
// manager should persist. Manual-path errors never count against the retry
// budget; retryable ones go through retry scheduling subject to budget.
func FailureState(err error) targets.State {
	switch Kind(err) {
	case KindManualRequired, KindMissingEnv, KindMissingConfig:
		return targets.StateManualRequired
	case KindRateLimited, KindTransient:
		return targets.StateRetryScheduled
	default:
		return targets.StateNonRetryableFailed
	}
}

func buildDetail(platform, operation, message string) string {
	parts := make([]string, 0, 3)
	if platform = strings.TrimSpace(platform); platform != "" {
		parts = append(parts, platform)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "publish failure"
	}
	return strings.Join(parts, ": ")
}
