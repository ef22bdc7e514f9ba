// Package translate implements ports.Translator against a LibreTranslate
// compatible endpoint.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newspulse/internal/config"
	"newspulse/internal/ports"
)

// Client posts translation requests as JSON and reads back translatedText.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ ports.Translator = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.TranslateConfig) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type request struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type response struct {
	TranslatedText string `json:"translatedText"`
}

// Translate converts text from source to target. An empty or "unknown"
// source is sent as "auto".
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	if c == nil || c.endpoint == "" {
		return "", fmt.Errorf("translate client misconfigured")
	}
	if source == "" {
		source = "auto"
	}

	body, err := json.Marshal(request{
		Q:      text,
		Source: source,
		Target: target,
		Format: "text",
		APIKey: c.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal translate payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("translate error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	if parsed.TranslatedText == "" {
		return "", fmt.Errorf("translate response is empty")
	}

	return parsed.TranslatedText, nil
}
