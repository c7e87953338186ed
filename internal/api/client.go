// Package api implements the usage-metering API client.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xikxp1/claude-monitor/internal/logger"
	"github.com/xikxp1/claude-monitor/internal/models"
)

const (
	// DefaultBaseURL is the production metering endpoint.
	DefaultBaseURL = "https://claude.ai"

	userAgent      = "Claude-Monitor/0.1.0"
	requestTimeout = 30 * time.Second
)

// Client fetches usage snapshots. It performs exactly one request per call
// and never retries; backoff policy belongs to the refresher.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a usage API client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
	}
}

// Fetch performs one usage request authenticated with the session cookie.
// Credentials are format-validated by the caller before reaching here.
//
// Outcomes: 2xx with a well-formed body returns a snapshot; 401 maps to
// ErrUnauthorized, 429 to ErrRateLimited, other statuses to *ServerError,
// transport failures to *NetworkError, and undecodable 2xx bodies to
// *ParseError.
func (c *Client) Fetch(ctx context.Context, orgID, sessionToken string) (*models.UsageSnapshot, error) {
	url := fmt.Sprintf("%s/api/organizations/%s/usage", c.baseURL, orgID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", "sessionKey="+sessionToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &ServerError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	var snapshot models.UsageSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		logger.Error("failed to parse usage response", "error", err)
		return nil, &ParseError{Err: err}
	}

	return &snapshot, nil
}
