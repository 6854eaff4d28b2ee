package youtube_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/api/option"

	"syndicate/internal/publisher"
	"syndicate/internal/publisher/youtube"
)

func newAdapter(serverURL string) *youtube.Adapter {
	return youtube.New(youtube.WithClientOptions(option.WithEndpoint(serverURL)))
}

func TestVerifyIdentitySkipsWhenNoExpectedChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no API call expected when expected identity is empty")
	}))
	defer server.Close()

	adapter := newAdapter(server.URL)
	if err := adapter.VerifyIdentity(context.Background(), publisher.Credentials{AccessToken: "tok"}, ""); err != nil {
		t.Fatalf("empty expected identity must skip verification, got %v", err)
	}
}

func TestVerifyIdentityMatchesAuthenticatedChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/channels") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{{"id": "UCmatching"}},
		})
	}))
	defer server.Close()

	adapter := newAdapter(server.URL)
	creds := publisher.Credentials{AccessToken: "tok"}

	if err := adapter.VerifyIdentity(context.Background(), creds, "UCmatching"); err != nil {
		t.Fatalf("matching channel rejected: %v", err)
	}
	if err := adapter.VerifyIdentity(context.Background(), creds, "UCother"); !errors.Is(err, publisher.ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got %v", err)
	}
}

func TestPublishReturnsVideoID(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "episode.mp4")
	if err := os.WriteFile(artifact, []byte("video"), 0o600); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/videos") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "vid-123"})
	}))
	defer server.Close()

	adapter := newAdapter(server.URL)
	externalID, err := adapter.Publish(context.Background(), publisher.Credentials{AccessToken: "tok"}, publisher.PublishRequest{
		ArtifactPath: artifact,
		Title:        "Episode 1",
		Visibility:   "public",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if externalID != "vid-123" {
		t.Fatalf("external id = %q", externalID)
	}
}

func TestPublishMissingArtifact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for unreadable artifact")
	}))
	defer server.Close()

	adapter := newAdapter(server.URL)
	_, err := adapter.Publish(context.Background(), publisher.Credentials{AccessToken: "tok"}, publisher.PublishRequest{
		ArtifactPath: filepath.Join(t.TempDir(), "missing.mp4"),
	})
	if !errors.Is(err, publisher.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestClassifiesAPIFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		reason  string
		wantErr error
	}{
		{"quota exhausted", http.StatusForbidden, "quotaExceeded", publisher.ErrRateLimited},
		{"token rejected", http.StatusUnauthorized, "authError", publisher.ErrAuthMismatch},
		{"backend error", http.StatusBadGateway, "backendError", publisher.ErrTransient},
		{"bad request", http.StatusBadRequest, "invalidFilter", publisher.ErrInvalidConfig},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    tc.status,
						"message": tc.name,
						"errors":  []map[string]string{{"reason": tc.reason}},
					},
				})
			}))
			defer server.Close()

			adapter := newAdapter(server.URL)
			err := adapter.VerifyIdentity(context.Background(), publisher.Credentials{AccessToken: "tok"}, "UCmatching")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("VerifyIdentity error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
