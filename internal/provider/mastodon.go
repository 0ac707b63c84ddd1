package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/postpipe/internal/domain"
	"github.com/jonesrussell/postpipe/internal/logger"
)

const (
	mastodonTimeout     = 15 * time.Second
	maxErrorBodyBytes   = 2048
	defaultVisibility   = "public"
	statusEndpoint      = "/api/v1/statuses"
	credentialsEndpoint = "/api/v1/accounts/verify_credentials"
)

// Mastodon publishes statuses through the Mastodon REST API.
type Mastodon struct {
	baseURL     string
	accessToken string
	client      *http.Client
	logger      logger.Logger
}

// NewMastodon creates a Mastodon provider for the given instance.
func NewMastodon(baseURL, accessToken string, log logger.Logger) *Mastodon {
	return &Mastodon{
		baseURL:     baseURL,
		accessToken: accessToken,
		client:      &http.Client{Timeout: mastodonTimeout},
		logger:      log,
	}
}

type mastodonStatusRequest struct {
	Status     string `json:"status"`
	Visibility string `json:"visibility"`
	Language   string `json:"language,omitempty"`
	SpoilerTxt string `json:"spoiler_text,omitempty"`
}

type mastodonStatusResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Publish posts a status. Recognized metadata keys: "visibility",
// "language", "spoiler_text".
func (m *Mastodon) Publish(ctx context.Context, content string, metadata domain.Metadata) (*Result, error) {
	reqBody := mastodonStatusRequest{
		Status:     content,
		Visibility: defaultVisibility,
	}
	if v := metadata["visibility"]; v != "" {
		reqBody.Visibility = v
	}
	reqBody.Language = metadata["language"]
	reqBody.SpoilerTxt = metadata["spoiler_text"]

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal status request: %w", err)
	}

	url := m.baseURL + statusEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.accessToken)

	start := time.Now()
	resp, err := m.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("post status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		m.logger.Warn("mastodon rejected status",
			logger.String("url", url),
			logger.Int("status_code", resp.StatusCode),
			logger.Duration("duration", duration))
		return nil, fmt.Errorf("mastodon returned status %d: %s", resp.StatusCode, string(body))
	}

	var status mastodonStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	m.logger.Debug("published mastodon status",
		logger.String("post_id", status.ID),
		logger.Duration("duration", duration))
	return &Result{ID: status.ID, URL: status.URL}, nil
}

// ValidateCredentials verifies the access token against the instance.
func (m *Mastodon) ValidateCredentials(ctx context.Context) (bool, error) {
	url := m.baseURL + credentialsEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify credentials: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
