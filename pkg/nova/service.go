// Package nova implements the composite file-sharing workflows on top of the
// membership ledger, the symmetric codec and the content-addressed blob
// store. Upload and Retrieve are single logical operations; any step's
// failure aborts the remaining steps with no compensating rollback.
package nova

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"github.com/jcarbonnell/nova-sdk/internal/cipher"
	"github.com/jcarbonnell/nova-sdk/internal/ledger"
	"github.com/jcarbonnell/nova-sdk/internal/storage/ipfs"
	"github.com/jcarbonnell/nova-sdk/pkg/types"
)

// ErrInvalidContentID is returned for content ids that do not parse as a
// CIDv0 ("Qm...") identifier.
var ErrInvalidContentID = errors.New("invalid content id")

// ErrNoPrincipal is returned when a workflow requiring an acting principal
// finds none in the context.
var ErrNoPrincipal = errors.New("no acting principal in context")

// blobProbeConcurrency bounds parallel gateway probes during Verify.
const blobProbeConcurrency = 4

// UploadResult is returned by a successful Upload.
type UploadResult struct {
	ContentID     string `json:"content_id"`
	TransactionID string `json:"transaction_id"`
	FileHash      string `json:"file_hash"`
}

// RetrieveResult is returned by a successful Retrieve. FileHash is the hex
// SHA-256 of the recovered plaintext; comparing it against a known ledger
// transaction is the caller's responsibility.
type RetrieveResult struct {
	Data     []byte `json:"data"`
	FileHash string `json:"file_hash"`
}

// VerifyResult reports the outcome of a provenance verification pass.
type VerifyResult struct {
	TreeSize      uint64   `json:"tree_size"`
	Root          string   `json:"root"`
	LogConsistent bool     `json:"log_consistent"`
	MissingBlobs  []string `json:"missing_blobs,omitempty"`
}

// Service sequences ledger reads/writes with codec and blob-store calls.
// Key material is never cached across calls.
type Service struct {
	ledger      *ledger.Ledger
	blobs       *ipfs.ContentStore
	logger      *slog.Logger
	validatePin bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPinValidation enables a best-effort gateway probe of freshly pinned
// blobs. Probe failures are logged, never fatal.
func WithPinValidation() ServiceOption {
	return func(s *Service) {
		s.validatePin = true
	}
}

// NewService creates the workflow orchestrator.
func NewService(l *ledger.Ledger, blobs *ipfs.ContentStore, opts ...ServiceOption) *Service {
	s := &Service{
		ledger: l,
		blobs:  blobs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload encrypts plaintext under the group key, pins the ciphertext and
// records the transaction. A blob that made it to the content store but
// whose ledger write failed is an accepted orphan: content-addressed storage
// has no delete semantics, so nothing unsafe results and the caller may
// re-record it later.
func (s *Service) Upload(ctx context.Context, groupID, userID string, plaintext []byte, name string) (*UploadResult, error) {
	keyB64, err := s.ledger.GetKey(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}

	payloadB64, err := cipher.Encrypt(plaintext, keyB64)
	if err != nil {
		return nil, err
	}
	payload, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	contentID, err := s.blobs.Put(ctx, payload, name)
	if err != nil {
		return nil, err
	}

	if s.validatePin {
		if err := s.blobs.Probe(ctx, contentID); err != nil {
			s.logger.Warn("pin validation failed", "contentID", contentID, "error", err)
		}
	}

	fileHash := types.FileHash(plaintext)
	txID, err := s.ledger.RecordTransaction(ctx, s.ledger.Registrar(), groupID, userID, fileHash, contentID)
	if err != nil {
		return nil, fmt.Errorf("record transaction for orphaned blob %s: %w", contentID, err)
	}

	s.logger.Info("file uploaded", "groupID", groupID, "userID", userID, "contentID", contentID, "txID", txID)
	return &UploadResult{
		ContentID:     contentID,
		TransactionID: txID,
		FileHash:      fileHash,
	}, nil
}

// Retrieve fetches and decrypts a blob for the acting principal carried by
// the context. It does not cross-check the returned hash against a ledger
// transaction; callers needing end-to-end provenance do that comparison.
func (s *Service) Retrieve(ctx context.Context, groupID, contentID string) (*RetrieveResult, error) {
	if err := validateContentID(contentID); err != nil {
		return nil, err
	}

	principal := PrincipalFrom(ctx)
	if principal == "" {
		return nil, ErrNoPrincipal
	}

	keyB64, err := s.ledger.GetKey(ctx, principal, groupID)
	if err != nil {
		return nil, err
	}

	payload, err := s.blobs.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}

	plaintext, err := cipher.Decrypt(base64.StdEncoding.EncodeToString(payload), keyB64)
	if err != nil {
		return nil, err
	}

	return &RetrieveResult{
		Data:     plaintext,
		FileHash: types.FileHash(plaintext),
	}, nil
}

// List returns the group's transactions for the acting principal.
func (s *Service) List(ctx context.Context, groupID string) ([]types.Transaction, error) {
	principal := PrincipalFrom(ctx)
	if principal == "" {
		return nil, ErrNoPrincipal
	}
	return s.ledger.ListTransactions(ctx, principal, groupID, principal)
}

// Verify audits a group's provenance trail for the acting principal: it
// checks the transaction log against the persisted Merkle tree state and
// probes the content store for every recorded blob.
func (s *Service) Verify(ctx context.Context, groupID string) (*VerifyResult, error) {
	principal := PrincipalFrom(ctx)
	if principal == "" {
		return nil, ErrNoPrincipal
	}

	consistent, err := s.ledger.VerifyLog(ctx, principal, groupID)
	if err != nil {
		return nil, err
	}
	size, root, err := s.ledger.TreeHead(ctx, groupID)
	if err != nil {
		return nil, err
	}
	records, err := s.ledger.ListTransactions(ctx, principal, groupID, principal)
	if err != nil {
		return nil, err
	}

	missing := make([]string, 0)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobProbeConcurrency)
	for _, record := range records {
		contentID := record.ContentID
		g.Go(func() error {
			if err := s.blobs.Probe(gctx, contentID); err != nil {
				mu.Lock()
				missing = append(missing, contentID)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &VerifyResult{
		TreeSize:      size,
		Root:          hex.EncodeToString(root),
		LogConsistent: consistent,
		MissingBlobs:  missing,
	}, nil
}

// NewGroupKey generates a fresh random 32-byte group key, base64-encoded,
// for owner bootstrap via the ledger's StoreKey.
func NewGroupKey() (string, error) {
	return ledger.NewGroupKey()
}

func validateContentID(contentID string) error {
	parsed, err := cid.Decode(contentID)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidContentID, contentID, err)
	}
	if parsed.Version() != 0 {
		return fmt.Errorf("%w: %s: want a CIDv0 identifier", ErrInvalidContentID, contentID)
	}
	return nil
}
