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

const webhookTimeout = 10 * time.Second

// Webhook posts content as JSON to an arbitrary HTTP endpoint. It covers
// platforms without a first-class client: the receiver is expected to
// return {"id": "...", "url": "..."} on success.
type Webhook struct {
	url    string
	token  string
	client *http.Client
	logger logger.Logger
}

// NewWebhook creates a webhook provider. The token, when set, is sent as a
// bearer Authorization header.
func NewWebhook(url, token string, log logger.Logger) *Webhook {
	return &Webhook{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: webhookTimeout},
		logger: log,
	}
}

type webhookPayload struct {
	Content  string          `json:"content"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
}

// Publish delivers the content to the configured endpoint.
func (w *Webhook) Publish(ctx context.Context, content string, metadata domain.Metadata) (*Result, error) {
	payload, err := json.Marshal(webhookPayload{Content: content, Metadata: metadata})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode webhook response: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("webhook response missing post id")
	}

	w.logger.Debug("published via webhook",
		logger.String("url", w.url),
		logger.String("post_id", result.ID))
	return &result, nil
}

// ValidateCredentials probes the endpoint with a HEAD request. Any response
// from the server counts as reachable; auth failures show up as 401/403.
func (w *Webhook) ValidateCredentials(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.url, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe webhook: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden, nil
}
