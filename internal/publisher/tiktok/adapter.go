// Package tiktok implements the publish capability contract for the
// short-video host using the direct-post API: an init call reserves an upload
// slot, the artifact bytes are sent to the returned upload URL, and the
// publish id becomes the external id.
package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"syndicate/internal/accounts"
	"syndicate/internal/publisher"
)

const (
	platformName   = string(accounts.PlatformTikTok)
	defaultBaseURL = "https://open.tiktokapis.com"
)

// Adapter publishes videos through the TikTok content posting API.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures optional adapter behavior.
type Option func(*Adapter)

// WithBaseURL points the adapter at a different API host, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = baseURL
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = client
	}
}

// New constructs the TikTok adapter.
func New(opts ...Option) *Adapter {
	adapter := &Adapter{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Platform returns the platform family this adapter serves.
func (a *Adapter) Platform() accounts.Platform {
	return accounts.PlatformTikTok
}

// ResolveAccount reads the access token named by the account configuration.
// An account-level base_url override wins over the default API host.
func (a *Adapter) ResolveAccount(_ context.Context, account accounts.Account) (publisher.Credentials, error) {
	creds, err := publisher.ResolveFromEnv(account)
	if err != nil {
		return publisher.Credentials{}, err
	}
	if account.BaseURL != "" {
		creds.BaseURL = strings.TrimRight(account.BaseURL, "/")
	}
	return creds, nil
}

func (a *Adapter) host(creds publisher.Credentials) string {
	if creds.BaseURL != "" {
		return creds.BaseURL
	}
	return a.baseURL
}

type userInfoResponse struct {
	Data struct {
		User struct {
			OpenID      string `json:"open_id"`
			DisplayName string `json:"display_name"`
		} `json:"user"`
	} `json:"data"`
	Error apiError `json:"error"`
}

// VerifyIdentity checks that the token belongs to the expected open id. An
// empty expected identity accepts any authenticated user.
func (a *Adapter) VerifyIdentity(ctx context.Context, creds publisher.Credentials, expectedIdentity string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, a.host(creds)+"/v2/user/info/?fields=open_id,display_name", nil)
	if err != nil {
		return publisher.Wrap(publisher.ErrTransient, platformName, "verify identity", "build request", err)
	}
	request.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	var parsed userInfoResponse
	if err := a.do(request, &parsed, "verify identity"); err != nil {
		return err
	}
	if err := parsed.Error.check("verify identity"); err != nil {
		return err
	}
	if expectedIdentity != "" && parsed.Data.User.OpenID != expectedIdentity {
		return publisher.Wrap(publisher.ErrIdentityMismatch, platformName, "verify identity",
			fmt.Sprintf("authenticated user is not %s", expectedIdentity), nil)
	}
	return nil
}

type initRequest struct {
	PostInfo   postInfo   `json:"post_info"`
	SourceInfo sourceInfo `json:"source_info"`
}

type postInfo struct {
	Title        string `json:"title"`
	PrivacyLevel string `json:"privacy_level"`
}

type sourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int64  `json:"video_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunkCount int    `json:"total_chunk_count"`
}

type initResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error apiError `json:"error"`
}

// Publish runs init + upload and returns the publish id.
func (a *Adapter) Publish(ctx context.Context, creds publisher.Credentials, req publisher.PublishRequest) (string, error) {
	req = publisher.ShapeMetadata(req)

	info, err := os.Stat(req.ArtifactPath)
	if err != nil {
		return "", publisher.Wrap(publisher.ErrInvalidConfig, platformName, "publish",
			fmt.Sprintf("artifact %s is not readable", req.ArtifactPath), err)
	}

	payload, err := json.Marshal(initRequest{
		PostInfo: postInfo{
			Title:        req.Title,
			PrivacyLevel: privacyLevel(req.Visibility),
		},
		SourceInfo: sourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       info.Size(),
			ChunkSize:       info.Size(),
			TotalChunkCount: 1,
		},
	})
	if err != nil {
		return "", publisher.Wrap(publisher.ErrInvalidConfig, platformName, "publish", "encode init payload", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host(creds)+"/v2/post/publish/video/init/", bytes.NewReader(payload))
	if err != nil {
		return "", publisher.Wrap(publisher.ErrTransient, platformName, "publish", "build init request", err)
	}
	request.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	request.Header.Set("Content-Type", "application/json")

	var parsed initResponse
	if err := a.do(request, &parsed, "publish"); err != nil {
		return "", err
	}
	if err := parsed.Error.check("publish"); err != nil {
		return "", err
	}
	if parsed.Data.PublishID == "" || parsed.Data.UploadURL == "" {
		return "", publisher.Wrap(publisher.ErrTransient, platformName, "publish", "init response missing publish id or upload url", nil)
	}

	if err := a.uploadArtifact(ctx, parsed.Data.UploadURL, req.ArtifactPath, info.Size()); err != nil {
		return "", err
	}
	return parsed.Data.PublishID, nil
}

func (a *Adapter) uploadArtifact(ctx context.Context, uploadURL, path string, size int64) error {
	file, err := os.Open(path)
	if err != nil {
		return publisher.Wrap(publisher.ErrInvalidConfig, platformName, "upload",
			fmt.Sprintf("artifact %s is not readable", path), err)
	}
	defer file.Close()

	request, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return publisher.Wrap(publisher.ErrTransient, platformName, "upload", "build upload request", err)
	}
	request.ContentLength = size
	request.Header.Set("Content-Type", "video/mp4")
	request.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", size-1, size))

	response, err := a.httpClient.Do(request)
	if err != nil {
		return classifyTransport(err, "upload")
	}
	defer response.Body.Close()
	if response.StatusCode >= 400 {
		return classifyStatus(response.StatusCode, "upload", "")
	}
	return nil
}

func (a *Adapter) do(request *http.Request, out any, operation string) error {
	response, err := a.httpClient.Do(request)
	if err != nil {
		return classifyTransport(err, operation)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, "read response", err)
	}
	if response.StatusCode >= 400 {
		return classifyStatus(response.StatusCode, operation, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, "decode response", err)
	}
	return nil
}

// apiError is the envelope every content posting API response carries.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e apiError) check(operation string) error {
	switch e.Code {
	case "", "ok":
		return nil
	case "access_token_invalid", "scope_not_authorized", "scope_permission_missed":
		return publisher.Wrap(publisher.ErrAuthMismatch, platformName, operation, e.Message, nil)
	case "rate_limit_exceeded", "spam_risk_too_many_posts":
		return publisher.Wrap(publisher.ErrRateLimited, platformName, operation, e.Message, nil)
	case "invalid_params":
		return publisher.Wrap(publisher.ErrInvalidConfig, platformName, operation, e.Message, nil)
	default:
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, e.Code+": "+e.Message, nil)
	}
}

func classifyStatus(status int, operation, detail string) error {
	message := fmt.Sprintf("unexpected status %d", status)
	if detail != "" {
		message = fmt.Sprintf("unexpected status %d: %s", status, detail)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return publisher.Wrap(publisher.ErrRateLimited, platformName, operation, message, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return publisher.Wrap(publisher.ErrAuthMismatch, platformName, operation, message, nil)
	case status >= 500:
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, message, nil)
	default:
		return publisher.Wrap(publisher.ErrInvalidConfig, platformName, operation, message, nil)
	}
}

func classifyTransport(err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, "publish deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return publisher.Wrap(publisher.ErrTransient, platformName, operation, "request timed out", err)
	}
	return publisher.Wrap(publisher.ErrTransient, platformName, operation, "network failure", err)
}

func privacyLevel(visibility string) string {
	switch visibility {
	case "public":
		return "PUBLIC_TO_EVERYONE"
	case "unlisted":
		return "MUTUAL_FOLLOW_FRIENDS"
	default:
		return "SELF_ONLY"
	}
}
