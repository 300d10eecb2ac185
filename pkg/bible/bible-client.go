// Package bible proxies verse lookups to a third-party Bible text provider.
package bible

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

type Config struct {
	APIKey string
	// BaseURL is the passage search endpoint, queried with `?q=<reference>`
	BaseURL string
	Timeout time.Duration
}

// UpstreamError is a non successful answer from the provider.
type UpstreamError struct {
	Status     int
	StatusText string
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("bible provider responded %d: %s", e.Status, e.Message)
}

var (
	ErrMissingKey = errors.New("bible API key is required")
	// ErrMissingURL is returned when no provider endpoint is configured; there's no default provider
	ErrMissingURL = errors.New("bible API URL is required")
)

// Client fetches passages; identical lookups in flight at the same time share one upstream call.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	group      singleflight.Group
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingKey
	}
	if cfg.BaseURL == "" {
		return nil, ErrMissingURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Passage returns the provider's payload for the reference, unaltered.
func (c *Client) Passage(ctx context.Context, reference string) (json.RawMessage, error) {
	// a shared call must outlive the first caller's cancellation, the client timeout still bounds it
	var result = c.group.DoChan(reference, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), reference)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

func (c *Client) fetch(ctx context.Context, reference string) (json.RawMessage, error) {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bible API URL: %w", err)
	}
	var query = endpoint.Query()
	query.Set("q", reference)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bible request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read bible response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Message:    upstreamMessage(body),
		}
	}
	if !json.Valid(body) {
		return nil, errors.New("bible provider returned malformed JSON")
	}
	return body, nil
}

// upstreamMessage extracts the provider's explanation, falling back to the raw body.
func upstreamMessage(body []byte) string {
	var parsed struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		for _, message := range []string{parsed.Detail, parsed.Message, parsed.Error} {
			if message != "" {
				return message
			}
		}
	}
	var text = []rune(strings.TrimSpace(string(body)))
	if len(text) > 200 {
		text = text[:200]
	}
	return string(text)
}
