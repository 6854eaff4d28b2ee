package targets

import (
	"strings"
	"time"

	"syndicate/internal/accounts"
)

// State represents the lifecycle of a publish target.
type State string

const (
	StatePending            State = "pending"
	StateInProgress         State = "in_progress"
	StateRetryScheduled     State = "retry_scheduled"
	StateCompleted          State = "completed"
	StateManualRequired     State = "manual_required"
	StateNonRetryableFailed State = "non_retryable_failed"
	StateCancelled          State = "cancelled"
)

var allStates = []State{
	StatePending,
	StateInProgress,
	StateRetryScheduled,
	StateCompleted,
	StateManualRequired,
	StateNonRetryableFailed,
	StateCancelled,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

var terminalStates = map[State]struct{}{
	StateCompleted:          {},
	StateNonRetryableFailed: {},
	StateCancelled:          {},
}

// requeueableStates are the stuck states an operator may move back to pending.
var requeueableStates = map[State]struct{}{
	StateManualRequired:     {},
	StateNonRetryableFailed: {},
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a state ends the target's lifecycle. Terminal
// targets are retained for audit and never deleted automatically.
func (s State) IsTerminal() bool {
	_, ok := terminalStates[s]
	return ok
}

// Target is one logical publish request for one artifact to one
// account/platform/kind. Targets are created at enqueue time and mutated only
// through the store's transition primitive during dispatch.
type Target struct {
	ID               int64
	Platform         accounts.Platform
	AccountID        string
	Kind             accounts.Kind
	ArtifactPath     string
	Title            string
	Description      string
	Tags             []string
	Visibility       string
	PublishAt        *time.Time
	Fingerprint      string
	State            State
	Attempts         int
	LastErrorKind    string
	LastErrorMessage string
	NextAttemptAt    *time.Time
	ExternalID       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccountKey identifies the per-account serialization bucket for single-flight
// dispatch.
func (t *Target) AccountKey() string {
	return string(t.Platform) + "/" + t.AccountID
}

// NewTarget carries the fields needed to enqueue a publish target.
type NewTarget struct {
	Platform     accounts.Platform
	AccountID    string
	Kind         accounts.Kind
	ArtifactPath string
	Title        string
	Description  string
	Tags         []string
	Visibility   string
	PublishAt    *time.Time
	Fingerprint  string
}

// AttemptRecord is one append-only dispatch attempt outcome.
type AttemptRecord struct {
	TargetID     int64
	Attempt      int
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcome      State
	ErrorKind    string
	ErrorMessage string
}

// Stats aggregates target counts per state for diagnostics.
type Stats struct {
	Total      int
	ByState    map[State]int
	Dispatched int
}
