// Package daemon coordinates the background scheduler and enforces
// single-instance execution through a file lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"syndicate/internal/accounts"
	"syndicate/internal/config"
	"syndicate/internal/logging"
	"syndicate/internal/scheduler"
	"syndicate/internal/targets"
)

// Daemon owns the shared store, the account registry, and the scheduler loop.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *targets.Store
	registry  *accounts.Registry
	scheduler *scheduler.Scheduler
	logPath   string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information for diagnostics.
type Status struct {
	Running      bool
	Targets      targets.Stats
	TargetDBPath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *targets.Store, registry *accounts.Registry, sched *scheduler.Scheduler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || registry == nil || sched == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, registry, scheduler, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "syndicated.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logger.With(logging.FieldComponent, "daemon"),
		store:     store,
		registry:  registry,
		scheduler: sched,
		logPath:   filepath.Join(cfg.Paths.LogDir, "syndicate.log"),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another syndicate daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("syndicate daemon started", "lock", d.lockPath)
	return nil
}

// Stop halts the scheduler and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("syndicate daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ReloadAccounts re-reads the accounts file and swaps the live snapshot.
func (d *Daemon) ReloadAccounts() error {
	if err := d.registry.Reload(); err != nil {
		return fmt.Errorf("reload accounts: %w", err)
	}
	d.logger.Info("accounts reloaded", "path", d.registry.Path())
	return nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns current daemon diagnostics.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.GetStats(ctx)
	if err != nil {
		d.logger.Warn("failed to collect target stats", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		Targets:      stats,
		TargetDBPath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
}
