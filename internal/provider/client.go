package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/willbeckett/homelink-core/internal/infrastructure/config"
)

// maxResponseSize bounds the provider response body (1MB).
const maxResponseSize = 1 << 20

// Domain errors for the provider package.
var (
	// ErrDisabled indicates the provider integration is off in config.
	ErrDisabled = errors.New("provider: disabled in configuration")

	// ErrUnavailable wraps transport failures and non-2xx responses.
	ErrUnavailable = errors.New("provider: unavailable")
)

// Client reads aggregated device attributes from the external
// application-state provider. The provider is eventually consistent with
// the bus; callers treat a failed fetch as "no enrichment", never as a
// request failure.
type Client struct {
	url    string
	client *http.Client
}

// New creates a provider client from configuration.
func New(cfg config.ProviderConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("provider: url is required")
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Fetch retrieves the latest attribute map, keyed by device ID. The
// request honours ctx cancellation on top of the client's own timeout.
func (c *Client) Fetch(ctx context.Context) (map[string]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrUnavailable, err)
	}

	var attrs map[string]map[string]any
	if err := json.Unmarshal(body, &attrs); err != nil {
		return nil, fmt.Errorf("%w: decoding body: %w", ErrUnavailable, err)
	}

	return attrs, nil
}
