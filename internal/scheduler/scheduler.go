// Package scheduler drives publication: it polls the target store for due
// work, enforces single-flight per account, claims targets through
// compare-and-swap transitions, and hands them to the upload manager.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"syndicate/internal/config"
	"syndicate/internal/logging"
	"syndicate/internal/targets"
	"syndicate/internal/uploader"
)

// Scheduler owns the polling loop and per-account dispatch bookkeeping.
type Scheduler struct {
	cfg     *config.Config
	store   *targets.Store
	manager *uploader.Manager
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight map[string]struct{}

	pollInterval  time.Duration
	errorInterval time.Duration
	now           func() time.Time
}

// New builds a scheduler over the shared store and upload manager.
func New(cfg *config.Config, store *targets.Store, manager *uploader.Manager, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:           cfg,
		store:         store,
		manager:       manager,
		logger:        logger.With(logging.FieldComponent, "scheduler"),
		inflight:      make(map[string]struct{}),
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		now:           time.Now,
	}
}

// Start recovers interrupted work and launches the polling loop. It is safe to
// call Stop from a different goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	recovered, err := s.store.RecoverInterrupted(runCtx)
	if err != nil {
		s.markStopped()
		return err
	}
	if recovered > 0 {
		s.logger.Info("recovered interrupted targets", "count", recovered)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()
	return nil
}

// Stop cancels the loop and waits for in-flight dispatches to finish writing
// their outcomes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.markStopped()
}

func (s *Scheduler) markStopped() {
	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context) {
	s.logger.Info("scheduler started", "poll_interval", s.pollInterval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-timer.C:
		}

		interval := s.pollInterval
		if err := s.DispatchDue(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("dispatch pass failed", logging.Error(err))
			interval = s.errorInterval
		}
		timer.Reset(interval)
	}
}

// DispatchDue runs one scheduling pass: list due targets in creation order,
// skip accounts with an attempt already in flight, claim the rest, and launch
// one dispatch goroutine per claimed target.
func (s *Scheduler) DispatchDue(ctx context.Context) error {
	due, err := s.store.ListDue(ctx, s.now())
	if err != nil {
		return err
	}

	for _, target := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.acquire(target.AccountKey()) {
			continue
		}
		claimed, err := s.claim(ctx, target)
		if err != nil {
			s.release(target.AccountKey())
			if errors.Is(err, targets.ErrStateConflict) || errors.Is(err, targets.ErrNotFound) {
				continue
			}
			return err
		}

		s.wg.Add(1)
		go func(t *targets.Target) {
			defer s.wg.Done()
			defer s.release(t.AccountKey())
			s.dispatch(ctx, t)
		}(claimed)
	}
	return nil
}

// claim moves a due target to in progress via compare-and-swap. A due retry
// first returns to pending so the persisted lifecycle matches the state
// machine; losing either race means another pass owns the target.
func (s *Scheduler) claim(ctx context.Context, target *targets.Target) (*targets.Target, error) {
	if target.State == targets.StateRetryScheduled {
		if err := s.store.Transition(ctx, target.ID, targets.StateRetryScheduled, targets.StatePending, targets.TransitionUpdate{}); err != nil {
			return nil, err
		}
	}
	if err := s.store.Transition(ctx, target.ID, targets.StatePending, targets.StateInProgress, targets.TransitionUpdate{}); err != nil {
		return nil, err
	}
	claimed, err := s.store.GetByID(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, targets.ErrNotFound
	}
	return claimed, nil
}

func (s *Scheduler) dispatch(ctx context.Context, target *targets.Target) {
	correlationID := uuid.NewString()
	log := s.logger.With(
		logging.FieldCorrelationID, correlationID,
		logging.FieldTargetID, target.ID,
		logging.FieldPlatform, string(target.Platform),
		logging.FieldAccount, target.AccountID,
	)
	log.Info("dispatching target", logging.FieldKind, string(target.Kind))

	if err := s.manager.Process(ctx, target); err != nil {
		if ctx.Err() != nil {
			log.Warn("dispatch interrupted, target left for recovery")
			return
		}
		log.Error("dispatch failed", logging.Error(err))
	}
}

// acquire reserves the account bucket; only one dispatch per account may be in
// flight at a time regardless of how many targets are due.
func (s *Scheduler) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Scheduler) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}
