package ipfs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// maxFetchAttempts bounds retrieval attempts against the primary
	// gateway before the fallback gateway is consulted.
	maxFetchAttempts = 3

	// retryInitialDelay is the first backoff interval; it doubles on each
	// subsequent timeout (2s, 4s, 8s).
	retryInitialDelay = 2 * time.Second
)

// ContentStore combines the pinning client, the primary gateway and a
// fallback gateway into the blob-store boundary used by the workflows:
// Put pins ciphertext once, Get retrieves it with bounded timeout-only
// retry and a final fallback attempt.
type ContentStore struct {
	pinner   Pinner
	primary  Fetcher
	fallback Fetcher
	cache    *lru.Cache[string, []byte]
	logger   *slog.Logger

	// sleep is swapped out in tests to observe the backoff sequence.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a ContentStore.
type Option func(*ContentStore)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ContentStore) {
		s.logger = logger
	}
}

// WithCache enables an in-memory LRU cache of fetched blobs. Blobs are
// content-addressed and immutable, so cached entries can never go stale.
func WithCache(size int) Option {
	return func(s *ContentStore) {
		cache, err := lru.New[string, []byte](size)
		if err != nil {
			// lru.New only fails on a non-positive size.
			panic(fmt.Sprintf("invalid blob cache size %d: %v", size, err))
		}
		s.cache = cache
	}
}

// NewContentStore creates a ContentStore over the given clients.
func NewContentStore(pinner Pinner, primary, fallback Fetcher, opts ...Option) *ContentStore {
	s := &ContentStore{
		pinner:   pinner,
		primary:  primary,
		fallback: fallback,
		logger:   slog.Default(),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put pins ciphertext and returns its content id. Single attempt: any
// provider error propagates immediately.
func (s *ContentStore) Put(ctx context.Context, data []byte, name string) (string, error) {
	contentID, err := s.pinner.Pin(ctx, data, name)
	if err != nil {
		return "", fmt.Errorf("pin blob: %w", err)
	}
	if s.cache != nil {
		s.cache.Add(contentID, append([]byte(nil), data...))
	}
	s.logger.Debug("pinned blob", "contentID", contentID, "bytes", len(data))
	return contentID, nil
}

// Get retrieves a blob by content id. Timeouts against the primary gateway
// are retried up to maxFetchAttempts times with exponential backoff starting
// at retryInitialDelay. Any non-timeout fault aborts immediately. When the
// primary is exhausted, a single attempt is made against the fallback
// gateway.
func (s *ContentStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(contentID); ok {
			return append([]byte(nil), data...), nil
		}
	}

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     retryInitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         8 * retryInitialDelay,
	}
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		data, err := s.primary.Fetch(ctx, contentID)
		if err == nil {
			s.cacheAdd(contentID, data)
			return data, nil
		}
		if !IsTimeout(err) {
			return nil, fmt.Errorf("fetch blob %s: %w", contentID, err)
		}
		lastErr = err
		s.logger.Warn("primary gateway timed out", "contentID", contentID, "attempt", attempt)
		if err := s.sleep(ctx, bo.NextBackOff()); err != nil {
			return nil, err
		}
	}

	s.logger.Warn("primary gateway exhausted, trying fallback", "contentID", contentID, "error", lastErr)
	data, err := s.fallback.Fetch(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("fallback fetch %s after %d primary attempts: %w", contentID, maxFetchAttempts, err)
	}
	s.cacheAdd(contentID, data)
	return data, nil
}

// Probe checks that the primary gateway can serve the content id.
func (s *ContentStore) Probe(ctx context.Context, contentID string) error {
	prober, ok := s.primary.(Prober)
	if !ok {
		return fmt.Errorf("primary gateway does not support probing")
	}
	return prober.Probe(ctx, contentID)
}

func (s *ContentStore) cacheAdd(contentID string, data []byte) {
	if s.cache != nil {
		s.cache.Add(contentID, append([]byte(nil), data...))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
