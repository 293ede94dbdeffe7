// Package leadgen wraps the external lead-search/scraping API the scout
// agent calls. The service is a fallible, latent dependency; the client
// carries its own timeout and surfaces rate limiting as a typed error.
package leadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// ErrRateLimited is returned when the search provider throttles us.
var ErrRateLimited = errors.New("lead search rate limited")

// Query describes one lead search.
type Query struct {
	Niche    string `json:"niche"`
	Location string `json:"location"`
	Limit    int    `json:"limit"`
}

// Source finds leads matching a query.
type Source interface {
	Search(ctx context.Context, q Query) ([]workflow.Lead, error)
}

// Client is the HTTP implementation of Source.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates a lead search client.
func NewClient(endpoint, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}
}

// Search runs one lead search against the provider.
func (c *Client) Search(ctx context.Context, q Query) ([]workflow.Lead, error) {
	if q.Limit <= 0 {
		q.Limit = 25
	}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search API error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Leads []workflow.Lead `json:"leads"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	c.logger.Debug("lead search done",
		zap.String("niche", q.Niche),
		zap.String("location", q.Location),
		zap.Int("found", len(result.Leads)))
	return result.Leads, nil
}
