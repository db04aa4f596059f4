package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// DefaultPinURL is the public Pinata pinning endpoint.
const DefaultPinURL = "https://api.pinata.cloud/pinning/pinFileToIPFS"

// PinataClient pins blobs through the Pinata HTTP API. Pinning is a single
// attempt: any provider error propagates immediately with no retry.
type PinataClient struct {
	pinURL     string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewPinataClient creates a pinning client with the given credentials.
func NewPinataClient(pinURL, apiKey, apiSecret string) *PinataClient {
	return &PinataClient{
		pinURL:    pinURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Pin uploads data as a multipart file and returns the content id assigned
// by the pinning service.
func (c *PinataClient) Pin(ctx context.Context, data []byte, name string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read pin response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pin service returned status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var parsed pinResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse pin response: %w", err)
	}
	if parsed.IpfsHash == "" {
		return "", fmt.Errorf("pin response carries no content id")
	}

	return parsed.IpfsHash, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Ensure PinataClient implements Pinner.
var _ Pinner = (*PinataClient)(nil)
