// Package ipfs is the client for the content-addressed blob store. Ciphertext
// blobs are pinned through a Pinata-style pinning endpoint and retrieved
// through IPFS HTTP gateways.
package ipfs

import (
	"context"
	"errors"
)

// Pinner uploads opaque blobs to the pinning service.
type Pinner interface {
	// Pin stores data under the given filename and returns its content id.
	Pin(ctx context.Context, data []byte, name string) (string, error)
}

// Fetcher retrieves blobs by content id.
type Fetcher interface {
	Fetch(ctx context.Context, contentID string) ([]byte, error)
}

// Prober checks blob availability without transferring it.
type Prober interface {
	Probe(ctx context.Context, contentID string) error
}

// ErrTimeout marks a transport fault that the retrieval policy may retry.
// Every other transport fault is fatal on first occurrence.
var ErrTimeout = errors.New("gateway timeout")

// IsTimeout reports whether err is a retryable timeout fault.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
