package ipfs

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// MockClient is an in-memory pin service and gateway for testing. It stores
// blobs keyed by genuine CIDv0 identifiers so content-id validation behaves
// exactly as against a real pinning service.
type MockClient struct {
	blobs map[string][]byte
	mu    sync.RWMutex
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{
		blobs: make(map[string][]byte),
	}
}

// Pin stores data and returns its CIDv0 ("Qm...") derived from the content.
func (c *MockClient) Pin(ctx context.Context, data []byte, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := contentID(data)
	if err != nil {
		return "", err
	}
	c.blobs[id] = append([]byte(nil), data...)
	return id, nil
}

// Fetch retrieves data by content id.
func (c *MockClient) Fetch(ctx context.Context, id string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, ok := c.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", id)
	}
	return append([]byte(nil), data...), nil
}

// Probe reports whether the blob is present.
func (c *MockClient) Probe(ctx context.Context, id string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.blobs[id]; !ok {
		return fmt.Errorf("blob not found: %s", id)
	}
	return nil
}

func contentID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash blob: %w", err)
	}
	return cid.NewCidV0(mh).String(), nil
}

// Ensure MockClient implements the client interfaces.
var (
	_ Pinner  = (*MockClient)(nil)
	_ Fetcher = (*MockClient)(nil)
	_ Prober  = (*MockClient)(nil)
)
