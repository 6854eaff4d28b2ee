package targets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrStateConflict is returned when a compare-and-swap transition loses a race:
// the target's current state no longer matches the expected one. Callers must
// skip the target, not retry immediately.
var ErrStateConflict = errors.New("target state conflict")

// ErrNotFound is returned when a transition references a missing target.
var ErrNotFound = errors.New("target not found")

// TransitionUpdate carries the fields written alongside a state transition.
type TransitionUpdate struct {
	ErrorKind         string
	ErrorMessage      string
	NextAttemptAt     *time.Time
	ExternalID        string
	IncrementAttempts bool
	ResetAttempts     bool
}

// Transition performs a compare-and-swap state change: the update applies only
// if the target is currently in the expected from state. Error fields are
// overwritten (cleared when empty) so every transition reflects exactly its
// own outcome.
func (s *Store) Transition(ctx context.Context, id int64, from, to State, update TransitionUpdate) error {
	ctx = ensureContext(ctx)
	if _, ok := stateSet[to]; !ok {
		return fmt.Errorf("unknown state %q", to)
	}

	attemptDelta := 0
	if update.IncrementAttempts {
		attemptDelta = 1
	}
	attemptExpr := "attempts + ?"
	attemptArg := any(attemptDelta)
	if update.ResetAttempts {
		attemptExpr = "?"
		attemptArg = 0
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE targets
         SET state = ?, attempts = `+attemptExpr+`,
             last_error_kind = ?, last_error_message = ?,
             next_attempt_at = ?, external_id = COALESCE(?, external_id),
             updated_at = ?
         WHERE id = ? AND state = ?`,
		to,
		attemptArg,
		nullableString(update.ErrorKind),
		nullableString(update.ErrorMessage),
		nullableTime(update.NextAttemptAt),
		nullableString(update.ExternalID),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition target %d %s->%s: %w", id, from, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("transition target %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("transition target %d %s->%s, currently %s: %w", id, from, to, current.State, ErrStateConflict)
	}
	return nil
}

// RecordAttempt appends one dispatch attempt outcome to the audit trail.
func (s *Store) RecordAttempt(ctx context.Context, rec AttemptRecord) error {
	if err := retryOnBusy(ensureContext(ctx), func() error {
		_, err := s.db.ExecContext(
			ensureContext(ctx),
			`INSERT INTO attempts (target_id, attempt, started_at, finished_at, outcome, error_kind, error_message)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.TargetID,
			rec.Attempt,
			rec.StartedAt.UTC().Format(time.RFC3339Nano),
			rec.FinishedAt.UTC().Format(time.RFC3339Nano),
			rec.Outcome,
			nullableString(rec.ErrorKind),
			nullableString(rec.ErrorMessage),
		)
		return err
	}); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// AttemptsFor returns the append-only attempt history for a target, oldest first.
func (s *Store) AttemptsFor(ctx context.Context, targetID int64) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT target_id, attempt, started_at, finished_at, outcome, error_kind, error_message
         FROM attempts WHERE target_id = ? ORDER BY attempt, id`,
		targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var records []AttemptRecord
	for rows.Next() {
		var (
			rec         AttemptRecord
			startedRaw  string
			finishedRaw string
			errKind     sql.NullString
			errMsg      sql.NullString
		)
		if err := rows.Scan(&rec.TargetID, &rec.Attempt, &startedRaw, &finishedRaw, &rec.Outcome, &errKind, &errMsg); err != nil {
			return nil, err
		}
		if started, err := parseTimeString(startedRaw); err == nil {
			rec.StartedAt = started
		}
		if finished, err := parseTimeString(finishedRaw); err == nil {
			rec.FinishedAt = finished
		}
		rec.ErrorKind = errKind.String
		rec.ErrorMessage = errMsg.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Requeue moves a target stuck in a manual-intervention state back to pending.
// The attempt count resets; the fingerprint is kept so dedup still applies.
func (s *Store) Requeue(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	target, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("requeue target %d: %w", id, ErrNotFound)
	}
	if _, ok := requeueableStates[target.State]; !ok {
		return fmt.Errorf("requeue target %d: state %s is not requeueable: %w", id, target.State, ErrStateConflict)
	}
	return s.Transition(ctx, id, target.State, StatePending, TransitionUpdate{ResetAttempts: true})
}

// Cancel transitions a waiting target to cancelled. Targets already in
// progress cannot be cancelled mid-publish; their in-flight attempt finishes
// and records its outcome.
func (s *Store) Cancel(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	target, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("cancel target %d: %w", id, ErrNotFound)
	}
	switch target.State {
	case StatePending, StateRetryScheduled:
		return s.Transition(ctx, id, target.State, StateCancelled, TransitionUpdate{})
	default:
		return fmt.Errorf("cancel target %d: state %s cannot be cancelled: %w", id, target.State, ErrStateConflict)
	}
}

// RecoverInterrupted moves targets left in progress by a previous run back to
// pending. Interrupted work is retried, never silently dropped or assumed
// complete. Call this once at daemon startup, before the scheduler begins.
func (s *Store) RecoverInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE targets
         SET state = ?, next_attempt_at = NULL, updated_at = ?
         WHERE state = ?`,
		StatePending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StateInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted targets: %w", err)
	}
	return res.RowsAffected()
}
