// Package uploader executes publish attempts for claimed targets. The manager
// resolves the account, verifies the authenticated identity before every
// publish call, runs the adapter under a timeout, and persists exactly one
// state transition plus one attempt record per outcome.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"syndicate/internal/accounts"
	"syndicate/internal/config"
	"syndicate/internal/logging"
	"syndicate/internal/notifications"
	"syndicate/internal/publisher"
	"syndicate/internal/targets"
)

// Manager drives a single publish attempt for one in-progress target.
type Manager struct {
	cfg      *config.Config
	store    *targets.Store
	registry *accounts.Registry
	adapters *publisher.Registry
	notifier notifications.Service
	logger   *slog.Logger
	backoff  BackoffPolicy
	now      func() time.Time
}

// NewManager builds an upload manager over the shared store and adapter set.
// The notifier receives terminal outcomes; a no-op service is substituted when
// nil is passed.
func NewManager(cfg *config.Config, store *targets.Store, registry *accounts.Registry, adapters *publisher.Registry, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		registry: registry,
		adapters: adapters,
		notifier: notifier,
		logger:   logger.With(logging.FieldComponent, "uploader"),
		backoff:  PolicyFromConfig(cfg),
		now:      time.Now,
	}
}

// Process runs one publish attempt for a target the scheduler already moved to
// in progress. Every outcome leaves the target in a well-defined state; a
// cancelled context leaves it in progress for startup recovery.
func (m *Manager) Process(ctx context.Context, target *targets.Target) error {
	attemptNo := target.Attempts + 1
	startedAt := m.now()
	log := m.logger.With(
		logging.FieldTargetID, target.ID,
		logging.FieldPlatform, string(target.Platform),
		logging.FieldAccount, target.AccountID,
		logging.FieldAttempt, attemptNo,
	)

	account, ok := m.registry.Snapshot().Lookup(target.Platform, target.AccountID)
	if !ok {
		err := publisher.Wrap(publisher.ErrMissingConfig, string(target.Platform), "resolve account",
			fmt.Sprintf("account %s is not configured", target.AccountID), nil)
		return m.finishFailure(ctx, target, attemptNo, startedAt, log, err, false)
	}
	adapter, ok := m.adapters.Lookup(target.Platform)
	if !ok {
		err := publisher.Wrap(publisher.ErrInvalidConfig, string(target.Platform), "resolve adapter",
			fmt.Sprintf("no adapter registered for platform %s", target.Platform), nil)
		return m.finishFailure(ctx, target, attemptNo, startedAt, log, err, false)
	}

	creds, err := adapter.ResolveAccount(ctx, account)
	if err != nil {
		return m.finishFailure(ctx, target, attemptNo, startedAt, log, err, false)
	}

	// Identity verification runs before every attempt, retries included, so a
	// rotated credential can never publish to the wrong channel.
	if err := adapter.VerifyIdentity(ctx, creds, account.ExpectedIdentity); err != nil {
		if interrupted(ctx, err) {
			log.Warn("identity verification interrupted by shutdown")
			return err
		}
		return m.finishFailure(ctx, target, attemptNo, startedAt, log, err, true)
	}

	publishCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.Upload.PublishTimeout)*time.Second)
	externalID, err := adapter.Publish(publishCtx, creds, requestFromTarget(target))
	cancel()
	if err != nil {
		if interrupted(ctx, err) {
			log.Warn("publish interrupted by shutdown")
			return err
		}
		return m.finishFailure(ctx, target, attemptNo, startedAt, log, err, true)
	}

	// The outcome of a finished attempt is persisted even when shutdown began
	// while the publish call was in flight.
	writeCtx := context.WithoutCancel(ctx)
	update := targets.TransitionUpdate{ExternalID: externalID, IncrementAttempts: true}
	if err := m.store.Transition(writeCtx, target.ID, targets.StateInProgress, targets.StateCompleted, update); err != nil {
		return err
	}
	m.recordAttempt(writeCtx, target.ID, attemptNo, startedAt, targets.StateCompleted, "", "")
	if err := m.notifier.PublishCompleted(writeCtx, target); err != nil {
		log.Warn("completion notification failed", logging.Args(logging.Error(err))...)
	}
	log.Info("publish completed", "external_id", externalID)
	return nil
}

// finishFailure classifies the error, picks the destination state, applies the
// retry budget, and persists the transition plus attempt record. countAttempt
// is false for pre-flight failures (manual accounts, missing credentials)
// which never consume retry budget.
func (m *Manager) finishFailure(ctx context.Context, target *targets.Target, attemptNo int, startedAt time.Time, log *slog.Logger, cause error, countAttempt bool) error {
	kind := publisher.Kind(cause)
	state := publisher.FailureState(cause)
	update := targets.TransitionUpdate{
		ErrorKind:         kind,
		ErrorMessage:      cause.Error(),
		IncrementAttempts: countAttempt,
	}

	if state == targets.StateRetryScheduled {
		if attemptNo >= m.cfg.Upload.MaxAttempts {
			// Budget exhausted: the last retryable error becomes final.
			state = targets.StateNonRetryableFailed
		} else {
			next := m.now().Add(m.backoff.Delay(attemptNo))
			update.NextAttemptAt = &next
		}
	}

	writeCtx := context.WithoutCancel(ctx)
	if err := m.store.Transition(writeCtx, target.ID, targets.StateInProgress, state, update); err != nil {
		return err
	}
	m.recordAttempt(writeCtx, target.ID, attemptNo, startedAt, state, kind, cause.Error())
	m.notifyFailure(writeCtx, log, target, state, kind, cause)

	attrs := logging.Args(
		logging.String("error_kind", kind),
		logging.String(logging.FieldState, string(state)),
		logging.Error(cause),
	)
	switch state {
	case targets.StateRetryScheduled:
		log.Warn("publish failed, retry scheduled", attrs...)
	case targets.StateManualRequired:
		log.Warn("publish requires manual intervention", attrs...)
	default:
		log.Error("publish failed permanently", attrs...)
	}
	return nil
}

// notifyFailure pushes terminal failure outcomes only; scheduled retries stay
// quiet until the budget resolves them one way or the other.
func (m *Manager) notifyFailure(ctx context.Context, log *slog.Logger, target *targets.Target, state targets.State, kind string, cause error) {
	var err error
	switch state {
	case targets.StateNonRetryableFailed:
		err = m.notifier.PublishFailed(ctx, target, kind, cause.Error())
	case targets.StateManualRequired:
		err = m.notifier.ManualRequired(ctx, target, cause.Error())
	default:
		return
	}
	if err != nil {
		log.Warn("failure notification failed", logging.Args(logging.Error(err))...)
	}
}

func (m *Manager) recordAttempt(ctx context.Context, targetID int64, attemptNo int, startedAt time.Time, outcome targets.State, kind, message string) {
	rec := targets.AttemptRecord{
		TargetID:     targetID,
		Attempt:      attemptNo,
		StartedAt:    startedAt,
		FinishedAt:   m.now(),
		Outcome:      outcome,
		ErrorKind:    kind,
		ErrorMessage: message,
	}
	if err := m.store.RecordAttempt(ctx, rec); err != nil {
		m.logger.Warn("failed to record attempt", logging.FieldTargetID, targetID, "error", err)
	}
}

// interrupted reports whether the error is the process shutting down rather
// than a platform outcome. The target stays in progress; RecoverInterrupted
// returns it to pending on the next start.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && err != nil
}

func requestFromTarget(target *targets.Target) publisher.PublishRequest {
	return publisher.PublishRequest{
		ArtifactPath: target.ArtifactPath,
		Title:        target.Title,
		Description:  target.Description,
		Tags:         target.Tags,
		Visibility:   target.Visibility,
		PublishAt:    target.PublishAt,
		Kind:         target.Kind,
	}
}
