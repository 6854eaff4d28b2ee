// Package notifications pushes publish outcomes to an operator via ntfy.
//
// The default implementation posts to the topic configured in config.toml and
// degrades to a no-op when no topic is set. Delivery failures are reported to
// the caller but never block the publishing pipeline.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"syndicate/internal/config"
	"syndicate/internal/targets"
)

const userAgent = "Syndicate/0.1.0"

// Service defines the notification surface exposed to the upload manager.
type Service interface {
	PublishCompleted(ctx context.Context, target *targets.Target) error
	PublishFailed(ctx context.Context, target *targets.Target, kind, message string) error
	ManualRequired(ctx context.Context, target *targets.Target, reason string) error
	Test(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) PublishCompleted(ctx context.Context, target *targets.Target) error {
	data := payload{
		title:   "Syndicate - Published",
		message: fmt.Sprintf("Published %s to %s/%s", describeTarget(target), target.Platform, target.AccountID),
		tags:    []string{"syndicate", "publish", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) PublishFailed(ctx context.Context, target *targets.Target, kind, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown error"
	}
	data := payload{
		title:    "Syndicate - Publish Failed",
		message:  fmt.Sprintf("Failed %s on %s/%s (%s): %s", describeTarget(target), target.Platform, target.AccountID, kind, message),
		tags:     []string{"syndicate", "publish", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) ManualRequired(ctx context.Context, target *targets.Target, reason string) error {
	data := payload{
		title:    "Syndicate - Action Required",
		message:  fmt.Sprintf("Target %d (%s on %s/%s) needs operator attention: %s", target.ID, describeTarget(target), target.Platform, target.AccountID, strings.TrimSpace(reason)),
		tags:     []string{"syndicate", "publish", "manual"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) Test(ctx context.Context) error {
	data := payload{
		title:   "Syndicate - Test",
		message: "Notifications are configured correctly",
		tags:    []string{"syndicate", "test"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %s", resp.Status)
	}
	return nil
}

func describeTarget(target *targets.Target) string {
	if title := strings.TrimSpace(target.Title); title != "" {
		return title
	}
	return target.ArtifactPath
}

type noopService struct{}

func (noopService) PublishCompleted(context.Context, *targets.Target) error { return nil }

func (noopService) PublishFailed(context.Context, *targets.Target, string, string) error {
	return nil
}

func (noopService) ManualRequired(context.Context, *targets.Target, string) error { return nil }

func (noopService) Test(context.Context) error { return nil }
