package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GatewayClient is a read-only client that fetches blobs via an IPFS HTTP
// gateway. It does not support uploads - use PinataClient for pinning.
type GatewayClient struct {
	gatewayURL string
	httpClient *http.Client
}

// NewGatewayClient creates a read-only gateway client.
func NewGatewayClient(gatewayURL string) *GatewayClient {
	return &GatewayClient{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// URL returns the configured gateway base URL.
func (c *GatewayClient) URL() string {
	return c.gatewayURL
}

// Fetch retrieves data by content id. Gateway timeouts (transport-level or
// HTTP 408/504) are reported as ErrTimeout so callers can distinguish
// retryable faults.
func (c *GatewayClient) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	url := fmt.Sprintf("%s/ipfs/%s", c.gatewayURL, contentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrTimeout, resp.StatusCode)
	default:
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if IsTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return data, nil
}

// Probe issues a HEAD request for the content id, returning nil if the
// gateway can serve it.
func (c *GatewayClient) Probe(ctx context.Context, contentID string) error {
	url := fmt.Sprintf("%s/ipfs/%s", c.gatewayURL, contentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Ensure GatewayClient implements the read interfaces.
var (
	_ Fetcher = (*GatewayClient)(nil)
	_ Prober  = (*GatewayClient)(nil)
)
