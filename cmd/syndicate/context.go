package main

import (
	"strings"
	"sync"

	"syndicate/internal/accounts"
	"syndicate/internal/config"
	"syndicate/internal/logging"
	"syndicate/internal/targets"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the target store for one command invocation. The store is a
// shared SQLite database, so CLI commands and the daemon can operate on it
// concurrently.
func (c *commandContext) withStore(fn func(*targets.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := targets.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// loadRegistry reads the accounts file referenced by the config. Registry
// warnings (duplicate defaults etc.) surface on stderr through the logger.
func (c *commandContext) loadRegistry() (*accounts.Registry, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: "warn"})
	if err != nil {
		return nil, err
	}
	return accounts.Load(cfg.Paths.AccountsFile, logger)
}
