// Package feed implements the publish capability contract for
// Mastodon-compatible social feed hosts: the artifact is uploaded as a media
// attachment, then a status referencing it is posted.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"syndicate/internal/accounts"
	"syndicate/internal/publisher"
)

const platformName = string(accounts.PlatformFeed)

// Adapter publishes to a Mastodon-compatible instance. The instance base URL
// comes from the account configuration, so one adapter serves every feed
// account.
type Adapter struct {
	httpClient *http.Client
}

// Option configures optional adapter behavior.
type Option func(*Adapter)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = client
	}
}

// New constructs the feed adapter.
func New(opts ...Option) *Adapter {
	adapter := &Adapter{httpClient: &http.Client{Timeout: 120 * time.Second}}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Platform returns the platform family this adapter serves.
func (a *Adapter) Platform() accounts.Platform {
	return accounts.PlatformFeed
}

// ResolveAccount reads the token and carries the instance URL alongside it.
// Feed accounts have no fixed API host, so base_url is mandatory.
func (a *Adapter) ResolveAccount(_ context.Context, account accounts.Account) (publisher.Credentials, error) {
	if account.BaseURL == "" {
		return publisher.Credentials{}, publisher.Wrap(publisher.ErrInvalidConfig, platformName, "resolve account",
			fmt.Sprintf("account %s has no base_url", account.ID), nil)
	}
	creds, err := publisher.ResolveFromEnv(account)
	if err != nil {
		return publisher.Credentials{}, err
	}
	creds.BaseURL = strings.TrimRight(account.BaseURL, "/")
	return creds, nil
}

type verifyResponse struct {
	Acct string `json:"acct"`
}

// VerifyIdentity checks the token resolves to the expected account handle.
func (a *Adapter) VerifyIdentity(ctx context.Context, creds publisher.Credentials, expectedIdentity string) error {
	if expectedIdentity == "" {
		return nil
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, creds.BaseURL+"/api/v1/accounts/verify_credentials", nil)
	if err != nil {
		return publisher.Wrap(publisher.ErrTransient, platformName, "verify identity", "build request", err)
	}
	request.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	var parsed verifyResponse
	if err := a.do(request, &parsed, "verify identity"); err != nil {
		return err
	}
	if !strings.EqualFold(parsed.Acct, expectedIdentity) {
		return publisher.Wrap(publisher.ErrIdentityMismatch, platformName, "verify identity",
			fmt.Sprintf("authenticated account %q is not %s", parsed.Acct, expectedIdentity), nil)
	}
	return nil
}

type mediaResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	ID string `json:"id"`
}

// Publish uploads the artifact as a media attachment and posts a status
// referencing it. The status id is the external id.
func (a *Adapter) Publish(ctx context.Context, creds publisher.Credentials, req publisher.PublishRequest) (string, error) {
	req = publisher.ShapeMetadata(req)

	mediaID, err := a.uploadMedia(ctx, creds, req.ArtifactPath)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"status":    statusText(req),
		"media_ids": []string{mediaID},
		"visibility": func() string {
			switch req.Visibility {
			case "public", "unlisted", "private":
				return req.Visibility
			default:
				return "unlisted"
			}
		}(),
	}
	if req.PublishAt != nil {
		payload["scheduled_at"] = req.PublishAt.UTC().Format(time.RFC3339)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", publisher.Wrap(publisher.ErrInvalidConfig, platformName, "publish", "encode status payload", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.BaseURL+"/api/v1/statuses", bytes.NewReader(encoded))
	if err != nil {
		return "", publisher.Wrap(publisher.ErrTransient, platformName, "publish", "build status request", err)
	}
	request.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	request.Header.Set("Content-Type", "application/json")

	var parsed statusResponse
	if err := a.do(request, &parsed, "publish"); err != nil {
		return "", err
	}
	if parsed.ID == "" {
		return "", publisher.Wrap(publisher.ErrTransient, platformName, "publish", "status response missing id", nil)
	}
	return parsed.ID, nil
}

func (a *Adapter) uploadMedia(ctx context.Context, creds publisher.Credentials, artifactPath string) (string, error) {
	file, err := os.Open(artifactPath)
	if err != nil {
		return "", publisher.Wrap(publisher.ErrInvalidConfig, platformName, "upload media",
			fmt.Sprintf("artifact %s is not readable", artifactPath), err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(artifactPath))
	if err != nil {
		return "", publisher.Wrap(publisher.ErrTransient, platformName, "upload media", "build form", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", publisher.Wrap(publisher.ErrTransient, platformName, "upload media", "copy artifact", err)
	}
	if err := writer.Close(); err != nil {
		return "", publisher.Wrap(publisher.ErrTransient, platformName, "upload media", "finish form", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.BaseURL+"/api/v2/media", &body)
	if err != nil {
		return "", publisher.Wrap(publisher.ErrTransient, platformName, "upload media", "build request", err)
	}
	request.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	request.Header.Set("Content-Type", writer.FormDataContentType())

	var parsed mediaResponse
	if err := a.do(request, &parsed, "upload media"); err != nil {
		return "", err
	}
	if parsed.ID == "" {
		return "", publisher.Wrap(publisher.ErrTransient, platformName, "upload media", "media response missing id", nil)
	}
	return parsed.ID, nil
}

func (a *Adapter) do(request *http.Request, out any, operation string) error {
	response, err := a.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return publisher.Wrap(publisher.ErrTransient, platformName, operation, "publish deadline exceeded", err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return publisher.Wrap(publisher.ErrTransient, platformName, operation, "request timed out", err)
		}
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, "network failure", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, "read response", err)
	}
	switch {
	case response.StatusCode == http.StatusTooManyRequests:
		return publisher.Wrap(publisher.ErrRateLimited, platformName, operation, "rate limited by instance", nil)
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return publisher.Wrap(publisher.ErrAuthMismatch, platformName, operation,
			fmt.Sprintf("status %d", response.StatusCode), nil)
	case response.StatusCode >= 500:
		return publisher.Wrap(publisher.ErrTransient, platformName, operation,
			fmt.Sprintf("status %d", response.StatusCode), nil)
	case response.StatusCode >= 400:
		return publisher.Wrap(publisher.ErrInvalidConfig, platformName, operation,
			fmt.Sprintf("status %d: %s", response.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, "decode response", err)
	}
	return nil
}

func statusText(req publisher.PublishRequest) string {
	parts := make([]string, 0, 3)
	if req.Title != "" {
		parts = append(parts, req.Title)
	}
	if req.Description != "" {
		parts = append(parts, req.Description)
	}
	var tags []string
	for _, tag := range req.Tags {
		tags = append(tags, "#"+strings.ReplaceAll(tag, " ", ""))
	}
	if len(tags) > 0 {
		parts = append(parts, strings.Join(tags, " "))
	}
	return strings.Join(parts, "\n\n")
}
