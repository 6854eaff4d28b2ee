// Command syndicated runs the publishing daemon: account registry, target
// store, scheduler, and platform adapters behind a single-instance lock.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"syndicate/internal/accounts"
	"syndicate/internal/config"
	"syndicate/internal/daemon"
	"syndicate/internal/logging"
	"syndicate/internal/scheduler"
	"syndicate/internal/targets"
	"syndicate/internal/uploader"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := targets.Open(cfg)
	if err != nil {
		logger.Error("open target store", logging.Error(err))
		return
	}

	registry, err := accounts.Load(cfg.Paths.AccountsFile, logger)
	if err != nil {
		logger.Error("load accounts", logging.Error(err))
		store.Close()
		return
	}

	adapters := daemon.BuildAdapters(cfg)
	manager := uploader.NewManager(cfg, store, registry, adapters, nil, logger)
	sched := scheduler.New(cfg, store, manager, logger)

	d, err := daemon.New(cfg, store, registry, sched, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			logger.Info("syndicated shutting down")
			return
		case <-hup:
			if err := d.ReloadAccounts(); err != nil {
				logger.Error("accounts reload failed", logging.Error(err))
			} else {
				logger.Info("accounts reloaded")
			}
		}
	}
}
