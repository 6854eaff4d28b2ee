package config

const (
	defaultDataDir            = "~/.local/share/syndicate"
	defaultLogDir             = "~/.local/share/syndicate/logs"
	defaultAccountsFile       = "~/.config/syndicate/accounts.toml"
	defaultMaxAttempts        = 5
	defaultRetryBackoffBase   = 30
	defaultRetryBackoffCap    = 1800
	defaultPublishTimeout     = 900
	defaultQueuePollInterval  = 10
	defaultErrorRetryInterval = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultNtfyTimeout        = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			LogDir:       defaultLogDir,
			AccountsFile: defaultAccountsFile,
		},
		Upload: Upload{
			MaxAttempts:      defaultMaxAttempts,
			RetryBackoffBase: defaultRetryBackoffBase,
			RetryBackoffCap:  defaultRetryBackoffCap,
			PublishTimeout:   defaultPublishTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
	}
}
