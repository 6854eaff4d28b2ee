// Package youtube implements the publish capability contract for the
// long-video host. Short-form targets on the same account are routed into the
// platform's shorts surface through metadata shaping.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"syndicate/internal/accounts"
	"syndicate/internal/publisher"
)

const platformName = string(accounts.PlatformYouTube)

// Adapter publishes videos through the YouTube Data API.
type Adapter struct {
	extraOptions []option.ClientOption
}

// Option configures optional adapter behavior.
type Option func(*Adapter)

// WithClientOptions appends API client options, used by tests to point the
// adapter at a stub endpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(a *Adapter) {
		a.extraOptions = append(a.extraOptions, opts...)
	}
}

// New constructs the YouTube adapter.
func New(opts ...Option) *Adapter {
	adapter := &Adapter{}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Platform returns the platform family this adapter serves.
func (a *Adapter) Platform() accounts.Platform {
	return accounts.PlatformYouTube
}

// ResolveAccount reads the access token named by the account configuration.
func (a *Adapter) ResolveAccount(_ context.Context, account accounts.Account) (publisher.Credentials, error) {
	return publisher.ResolveFromEnv(account)
}

// VerifyIdentity checks that the authenticated channel matches the expected
// channel id. Runs before every publish attempt; a mismatch is non-retryable.
// Accounts without an expected identity (the legacy single-account fallback
// among them) publish to whichever channel the credential authenticates.
func (a *Adapter) VerifyIdentity(ctx context.Context, creds publisher.Credentials, expectedIdentity string) error {
	if expectedIdentity == "" {
		return nil
	}

	service, err := a.newService(ctx, creds)
	if err != nil {
		return err
	}

	response, err := service.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return classify(err, "verify identity")
	}
	for _, channel := range response.Items {
		if channel.Id == expectedIdentity {
			return nil
		}
	}
	return publisher.Wrap(publisher.ErrIdentityMismatch, platformName, "verify identity",
		fmt.Sprintf("authenticated channel is not %s", expectedIdentity), nil)
}

// Publish uploads the artifact with its shaped metadata and returns the video id.
func (a *Adapter) Publish(ctx context.Context, creds publisher.Credentials, req publisher.PublishRequest) (string, error) {
	req = publisher.ShapeMetadata(req)

	service, err := a.newService(ctx, creds)
	if err != nil {
		return "", err
	}

	file, err := os.Open(req.ArtifactPath)
	if err != nil {
		return "", publisher.Wrap(publisher.ErrInvalidConfig, platformName, "publish",
			fmt.Sprintf("artifact %s is not readable", req.ArtifactPath), err)
	}
	defer file.Close()

	status := &youtube.VideoStatus{PrivacyStatus: privacyStatus(req)}
	if req.PublishAt != nil {
		// Scheduled publishes must stay private until the platform flips them.
		status.PrivacyStatus = "private"
		status.PublishAt = req.PublishAt.UTC().Format(time.RFC3339)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
		},
		Status: status,
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(file).Context(ctx).Do()
	if err != nil {
		return "", classify(err, "publish")
	}
	return response.Id, nil
}

func (a *Adapter) newService(ctx context.Context, creds publisher.Credentials) (*youtube.Service, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken})
	options := append([]option.ClientOption{option.WithTokenSource(source)}, a.extraOptions...)
	service, err := youtube.NewService(ctx, options...)
	if err != nil {
		return nil, publisher.Wrap(publisher.ErrTransient, platformName, "create client", "", err)
	}
	return service, nil
}

func privacyStatus(req publisher.PublishRequest) string {
	switch req.Visibility {
	case "public", "private", "unlisted":
		return req.Visibility
	default:
		return "private"
	}
}

// classify maps YouTube API failures onto the shared error taxonomy. The
// adapter owns this mapping; callers only see the sentinel markers.
func classify(err error, operation string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || hasReason(apiErr, "rateLimitExceeded", "quotaExceeded", "uploadLimitExceeded"):
			return publisher.Wrap(publisher.ErrRateLimited, platformName, operation, apiErr.Message, err)
		case apiErr.Code == 401 || apiErr.Code == 403:
			return publisher.Wrap(publisher.ErrAuthMismatch, platformName, operation, apiErr.Message, err)
		case apiErr.Code >= 500:
			return publisher.Wrap(publisher.ErrTransient, platformName, operation, apiErr.Message, err)
		default:
			return publisher.Wrap(publisher.ErrInvalidConfig, platformName, operation, apiErr.Message, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, "publish deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, "network failure", err)
	}
	return publisher.Wrap(publisher.ErrTransient, platformName, operation, "", err)
}

func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, reason := range reasons {
			if item.Reason == reason {
				return true
			}
		}
	}
	return false
}
