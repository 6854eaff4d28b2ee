package targets_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"syndicate/internal/accounts"
	"syndicate/internal/targets"
	"syndicate/internal/testsupport"
)

func TestEnqueueIsIdempotentOnFingerprint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "main", accounts.KindLong, "/videos/ep1.mp4")

	duplicate, created, err := store.Enqueue(ctx, targets.NewTarget{
		Platform:     accounts.PlatformYouTube,
		AccountID:    "main",
		Kind:         accounts.KindLong,
		ArtifactPath: "/videos/ep1.mp4",
		Title:        "a different title does not matter",
		Fingerprint:  first.Fingerprint,
	})
	if err != nil {
		t.Fatalf("duplicate Enqueue: %v", err)
	}
	if created {
		t.Fatal("duplicate enqueue created a second target")
	}
	if duplicate.ID != first.ID {
		t.Fatalf("duplicate enqueue returned target %d, want %d", duplicate.ID, first.ID)
	}
	if duplicate.Title != first.Title {
		t.Fatalf("existing target was mutated: title %q", duplicate.Title)
	}
}

func TestEnqueueBlocksWhileFailedAndReopensAfterCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	target := testsupport.SeedTarget(t, store, accounts.PlatformTikTok, "brand", accounts.KindShorts, "/videos/clip.mp4")

	// A failed target still holds the fingerprint.
	mustTransition(t, store, target.ID, targets.StatePending, targets.StateInProgress)
	mustTransition(t, store, target.ID, targets.StateInProgress, targets.StateNonRetryableFailed)

	_, created, err := store.Enqueue(ctx, targets.NewTarget{
		Platform:     target.Platform,
		AccountID:    target.AccountID,
		Kind:         target.Kind,
		ArtifactPath: target.ArtifactPath,
		Fingerprint:  target.Fingerprint,
	})
	if err != nil {
		t.Fatalf("Enqueue while failed: %v", err)
	}
	if created {
		t.Fatal("failed target should still block the fingerprint")
	}

	// Completion spends the fingerprint; a fresh epoch may begin.
	if err := store.Requeue(ctx, target.ID); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	mustTransition(t, store, target.ID, targets.StatePending, targets.StateInProgress)
	mustTransition(t, store, target.ID, targets.StateInProgress, targets.StateCompleted)

	fresh, created, err := store.Enqueue(ctx, targets.NewTarget{
		Platform:     target.Platform,
		AccountID:    target.AccountID,
		Kind:         target.Kind,
		ArtifactPath: target.ArtifactPath,
		Fingerprint:  target.Fingerprint,
	})
	if err != nil {
		t.Fatalf("Enqueue after completion: %v", err)
	}
	if !created {
		t.Fatal("expected a fresh target after the previous one completed")
	}
	if fresh.ID == target.ID {
		t.Fatal("fresh epoch reused the completed row")
	}
	if fresh.Attempts != 0 || fresh.State != targets.StatePending {
		t.Fatalf("fresh target should start clean, got state=%s attempts=%d", fresh.State, fresh.Attempts)
	}
}

func TestEnqueueValidatesInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		name string
		req  targets.NewTarget
	}{
		{"missing fingerprint", targets.NewTarget{Platform: accounts.PlatformYouTube, AccountID: "main", ArtifactPath: "/a.mp4"}},
		{"missing artifact", targets.NewTarget{Platform: accounts.PlatformYouTube, AccountID: "main", Fingerprint: "fp"}},
		{"missing account", targets.NewTarget{Platform: accounts.PlatformYouTube, ArtifactPath: "/a.mp4", Fingerprint: "fp"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := store.Enqueue(ctx, tc.req); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTransitionCompareAndSwap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	target := testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "main", accounts.KindLong, "/videos/cas.mp4")

	if err := store.Transition(ctx, target.ID, targets.StatePending, targets.StateInProgress, targets.TransitionUpdate{}); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	err := store.Transition(ctx, target.ID, targets.StatePending, targets.StateInProgress, targets.TransitionUpdate{})
	if !errors.Is(err, targets.ErrStateConflict) {
		t.Fatalf("second claim should lose the race with ErrStateConflict, got %v", err)
	}

	if err := store.Transition(ctx, 9999, targets.StatePending, targets.StateInProgress, targets.TransitionUpdate{}); !errors.Is(err, targets.ErrNotFound) {
		t.Fatalf("missing target should yield ErrNotFound, got %v", err)
	}
}

func TestTransitionWritesOutcomeFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	target := testsupport.SeedTarget(t, store, accounts.PlatformTikTok, "brand", accounts.KindLong, "/videos/fields.mp4")
	mustTransition(t, store, target.ID, targets.StatePending, targets.StateInProgress)

	next := time.Now().UTC().Add(30 * time.Second).Truncate(time.Second)
	err := store.Transition(ctx, target.ID, targets.StateInProgress, targets.StateRetryScheduled, targets.TransitionUpdate{
		ErrorKind:         "TRANSIENT_NETWORK",
		ErrorMessage:      "connection reset",
		NextAttemptAt:     &next,
		IncrementAttempts: true,
	})
	if err != nil {
		t.Fatalf("retry transition: %v", err)
	}

	got, err := store.GetByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.State != targets.StateRetryScheduled || got.Attempts != 1 {
		t.Fatalf("state=%s attempts=%d, want retry_scheduled/1", got.State, got.Attempts)
	}
	if got.LastErrorKind != "TRANSIENT_NETWORK" || got.LastErrorMessage != "connection reset" {
		t.Fatalf("error fields: %q %q", got.LastErrorKind, got.LastErrorMessage)
	}
	if got.NextAttemptAt == nil || !got.NextAttemptAt.Equal(next) {
		t.Fatalf("next attempt at: %v, want %v", got.NextAttemptAt, next)
	}

	// A successful transition clears error fields and keeps the external id.
	mustTransition(t, store, target.ID, targets.StateRetryScheduled, targets.StatePending)
	mustTransition(t, store, target.ID, targets.StatePending, targets.StateInProgress)
	if err := store.Transition(ctx, target.ID, targets.StateInProgress, targets.StateCompleted, targets.TransitionUpdate{
		ExternalID:        "yt-abc123",
		IncrementAttempts: true,
	}); err != nil {
		t.Fatalf("complete transition: %v", err)
	}

	got, err = store.GetByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.LastErrorKind != "" || got.LastErrorMessage != "" {
		t.Fatalf("completed target kept stale error fields: %q %q", got.LastErrorKind, got.LastErrorMessage)
	}
	if got.ExternalID != "yt-abc123" || got.Attempts != 2 {
		t.Fatalf("external=%q attempts=%d", got.ExternalID, got.Attempts)
	}
}

func TestListDue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now().UTC()

	pending := testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "main", accounts.KindLong, "/videos/a.mp4")

	dueRetry := testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "clips", accounts.KindShorts, "/videos/b.mp4")
	mustTransition(t, store, dueRetry.ID, targets.StatePending, targets.StateInProgress)
	past := now.Add(-time.Minute)
	if err := store.Transition(ctx, dueRetry.ID, targets.StateInProgress, targets.StateRetryScheduled, targets.TransitionUpdate{NextAttemptAt: &past, IncrementAttempts: true}); err != nil {
		t.Fatalf("schedule due retry: %v", err)
	}

	futureRetry := testsupport.SeedTarget(t, store, accounts.PlatformTikTok, "brand", accounts.KindLong, "/videos/c.mp4")
	mustTransition(t, store, futureRetry.ID, targets.StatePending, targets.StateInProgress)
	future := now.Add(time.Hour)
	if err := store.Transition(ctx, futureRetry.ID, targets.StateInProgress, targets.StateRetryScheduled, targets.TransitionUpdate{NextAttemptAt: &future, IncrementAttempts: true}); err != nil {
		t.Fatalf("schedule future retry: %v", err)
	}

	inProgress := testsupport.SeedTarget(t, store, accounts.PlatformFeed, "mastodon", accounts.KindLong, "/videos/d.mp4")
	mustTransition(t, store, inProgress.ID, targets.StatePending, targets.StateInProgress)

	due, err := store.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due targets, got %d", len(due))
	}
	if due[0].ID != pending.ID || due[1].ID != dueRetry.ID {
		t.Fatalf("due order: got %d, %d; want %d, %d", due[0].ID, due[1].ID, pending.ID, dueRetry.ID)
	}
}

func TestRecoverInterrupted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	interrupted := testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "main", accounts.KindLong, "/videos/crash.mp4")
	mustTransition(t, store, interrupted.ID, targets.StatePending, targets.StateInProgress)

	untouched := testsupport.SeedTarget(t, store, accounts.PlatformTikTok, "brand", accounts.KindLong, "/videos/safe.mp4")

	count, err := store.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recovered target, got %d", count)
	}

	got, err := store.GetByID(ctx, interrupted.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.State != targets.StatePending {
		t.Fatalf("interrupted target state = %s, want pending", got.State)
	}
	if got.NextAttemptAt != nil {
		t.Fatal("recovery should clear next_attempt_at")
	}

	other, err := store.GetByID(ctx, untouched.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if other.State != targets.StatePending {
		t.Fatalf("untouched target state changed to %s", other.State)
	}
}

func TestRequeueRules(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		name  string
		state targets.State
		ok    bool
	}{
		{"manual_required", targets.StateManualRequired, true},
		{"non_retryable_failed", targets.StateNonRetryableFailed, true},
		{"cancelled", targets.StateCancelled, false},
		{"completed", targets.StateCompleted, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			artifact := "/videos/requeue-" + tc.name + ".mp4"
			target := testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "main", accounts.KindLong, artifact)
			switch tc.state {
			case targets.StateCancelled:
				if err := store.Cancel(ctx, target.ID); err != nil {
					t.Fatalf("Cancel: %v", err)
				}
			default:
				mustTransition(t, store, target.ID, targets.StatePending, targets.StateInProgress)
				mustTransition(t, store, target.ID, targets.StateInProgress, tc.state)
			}

			err := store.Requeue(ctx, target.ID)
			if tc.ok {
				if err != nil {
					t.Fatalf("Requeue from %s: %v", tc.state, err)
				}
				got, err := store.GetByID(ctx, target.ID)
				if err != nil {
					t.Fatalf("GetByID: %v", err)
				}
				if got.State != targets.StatePending || got.Attempts != 0 {
					t.Fatalf("requeued target state=%s attempts=%d", got.State, got.Attempts)
				}
				return
			}
			if !errors.Is(err, targets.ErrStateConflict) {
				t.Fatalf("Requeue from %s should be refused, got %v", tc.state, err)
			}
		})
	}
}

func TestCancelRules(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	waiting := testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "main", accounts.KindLong, "/videos/cancel-ok.mp4")
	if err := store.Cancel(ctx, waiting.ID); err != nil {
		t.Fatalf("Cancel pending: %v", err)
	}

	active := testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "clips", accounts.KindLong, "/videos/cancel-busy.mp4")
	mustTransition(t, store, active.ID, targets.StatePending, targets.StateInProgress)
	if err := store.Cancel(ctx, active.ID); !errors.Is(err, targets.ErrStateConflict) {
		t.Fatalf("Cancel in_progress should be refused, got %v", err)
	}
}

func TestAttemptHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	target := testsupport.SeedTarget(t, store, accounts.PlatformTikTok, "brand", accounts.KindLong, "/videos/history.mp4")

	started := time.Now().UTC().Add(-time.Minute)
	records := []targets.AttemptRecord{
		{TargetID: target.ID, Attempt: 1, StartedAt: started, FinishedAt: started.Add(5 * time.Second), Outcome: targets.StateRetryScheduled, ErrorKind: "RATE_LIMITED", ErrorMessage: "429"},
		{TargetID: target.ID, Attempt: 2, StartedAt: started.Add(time.Minute), FinishedAt: started.Add(time.Minute + 3*time.Second), Outcome: targets.StateCompleted},
	}
	for _, rec := range records {
		if err := store.RecordAttempt(ctx, rec); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	history, err := store.AttemptsFor(ctx, target.ID)
	if err != nil {
		t.Fatalf("AttemptsFor: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(history))
	}
	if history[0].Attempt != 1 || history[0].ErrorKind != "RATE_LIMITED" {
		t.Fatalf("first attempt: %+v", history[0])
	}
	if history[1].Outcome != targets.StateCompleted || history[1].ErrorKind != "" {
		t.Fatalf("second attempt: %+v", history[1])
	}
}

func TestStatsAndClearCompleted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "main", accounts.KindLong, "/videos/done.mp4")
	mustTransition(t, store, done.ID, targets.StatePending, targets.StateInProgress)
	mustTransition(t, store, done.ID, targets.StateInProgress, targets.StateCompleted)

	testsupport.SeedTarget(t, store, accounts.PlatformYouTube, "clips", accounts.KindLong, "/videos/waiting.mp4")

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 2 || stats.ByState[targets.StateCompleted] != 1 || stats.ByState[targets.StatePending] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	removed, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d targets, want 1", removed)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].State != targets.StatePending {
		t.Fatalf("unexpected remaining targets: %+v", remaining)
	}
}

func TestTagsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	target, created, err := store.Enqueue(ctx, targets.NewTarget{
		Platform:     accounts.PlatformYouTube,
		AccountID:    "main",
		Kind:         accounts.KindShorts,
		ArtifactPath: "/videos/tagged.mp4",
		Tags:         []string{"golang", "devlog"},
		Fingerprint:  "tagged-fp",
	})
	if err != nil || !created {
		t.Fatalf("Enqueue: created=%v err=%v", created, err)
	}

	got, err := store.GetByID(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "golang" || got.Tags[1] != "devlog" {
		t.Fatalf("tags round trip: %v", got.Tags)
	}
}

func mustTransition(t *testing.T, store *targets.Store, id int64, from, to targets.State) {
	t.Helper()
	if err := store.Transition(context.Background(), id, from, to, targets.TransitionUpdate{}); err != nil {
		t.Fatalf("transition %s -> %s: %v", from, to, err)
	}
}
