package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"syndicate/internal/accounts"
	"syndicate/internal/daemon"
	"syndicate/internal/logging"
	"syndicate/internal/scheduler"
	"syndicate/internal/targets"
	"syndicate/internal/uploader"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the publishing daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "syndicate.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := targets.Open(cfg)
	if err != nil {
		logger.Error("open target store", logging.Error(err))
		return err
	}
	defer store.Close()

	registry, err := accounts.Load(cfg.Paths.AccountsFile, logger)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	adapters := daemon.BuildAdapters(cfg)

	manager := uploader.NewManager(cfg, store, registry, adapters, nil, logger)
	sched := scheduler.New(cfg, store, manager, logger)

	d, err := daemon.New(cfg, store, registry, sched, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	// SIGHUP re-reads the accounts file without restarting the scheduler.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-signalCtx.Done():
			logger.Info("syndicate daemon shutting down")
			return nil
		case <-hup:
			if err := d.ReloadAccounts(); err != nil {
				logger.Error("accounts reload failed", logging.Error(err))
			} else {
				logger.Info("accounts reloaded")
			}
		}
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
