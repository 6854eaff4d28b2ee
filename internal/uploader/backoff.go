package uploader

import (
	"time"

	"syndicate/internal/config"
)

// BackoffPolicy computes deterministic exponential retry delays.
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

// PolicyFromConfig builds a backoff policy from the upload settings.
func PolicyFromConfig(cfg *config.Config) BackoffPolicy {
	return BackoffPolicy{
		Base: time.Duration(cfg.Upload.RetryBackoffBase) * time.Second,
		Cap:  time.Duration(cfg.Upload.RetryBackoffCap) * time.Second,
	}
}

// Delay returns the wait before the given attempt number retries. Attempt 1
// waits the base interval and each further attempt doubles it until the cap.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.Cap || delay <= 0 {
			return p.Cap
		}
	}
	if delay > p.Cap {
		return p.Cap
	}
	return delay
}
