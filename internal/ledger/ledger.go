// Package ledger implements the authoritative membership and key-lifecycle
// state machine: groups, membership sets, a rotating symmetric key per group
// and an append-only transaction log.
package ledger

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jcarbonnell/nova-sdk/internal/cipher"
	"github.com/jcarbonnell/nova-sdk/internal/storage"
	"github.com/jcarbonnell/nova-sdk/pkg/types"
)

// Ledger serializes every operation behind a single mutex: each call runs to
// completion before the next begins, so the store never observes two
// concurrent mutations.
type Ledger struct {
	store     storage.Store
	registrar string
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithClock overrides the commit timestamp source (tests only).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a Ledger over the given store. The registrar is the only
// principal allowed to register groups and record transactions.
func New(store storage.Store, registrar string, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		registrar: registrar,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registrar returns the principal holding the registrar/recorder role.
func (l *Ledger) Registrar() string {
	return l.registrar
}

// RegisterGroup creates a group owned by the caller. Only the registrar may
// register groups.
func (l *Ledger) RegisterGroup(ctx context.Context, caller, groupID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.store.GetGroup(ctx, groupID); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, groupID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if caller != l.registrar {
		return fmt.Errorf("%w: only the registrar can register groups", ErrUnauthorized)
	}

	if err := l.store.CreateGroup(ctx, groupID, caller); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, groupID)
		}
		return err
	}

	l.logger.Info("group registered", "groupID", groupID, "owner", caller)
	return nil
}

// AddMember appends a user to the group's membership set. Owner-gated.
func (l *Ledger) AddMember(ctx context.Context, caller, groupID, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	group, err := l.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if caller != group.Owner {
		return fmt.Errorf("%w: only the group owner can add members", ErrUnauthorized)
	}

	if err := l.store.AddMember(ctx, groupID, userID); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return fmt.Errorf("%w: %s in group %s", ErrAlreadyMember, userID, groupID)
		}
		return err
	}

	l.logger.Info("member added", "groupID", groupID, "userID", userID)
	return nil
}

// RevokeMember removes a user from the group and rotates the group key in
// the same atomic state transition: there is no window where membership has
// been revoked but the old key remains current. The fresh key comes from the
// ledger's own entropy source, which callers cannot observe or influence.
func (l *Ledger) RevokeMember(ctx context.Context, caller, groupID, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	group, err := l.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if caller != group.Owner {
		return fmt.Errorf("%w: only the group owner can revoke members", ErrUnauthorized)
	}

	newKey, err := NewGroupKey()
	if err != nil {
		return err
	}

	if err := l.store.RemoveMemberRotateKey(ctx, groupID, userID, newKey); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s in group %s", ErrNotAMember, userID, groupID)
		}
		return err
	}

	l.logger.Info("member revoked and key rotated", "groupID", groupID, "userID", userID)
	return nil
}

// IsAuthorized reports whether the user is currently a member. Public read.
func (l *Ledger) IsAuthorized(ctx context.Context, groupID, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.getGroup(ctx, groupID); err != nil {
		return false, err
	}
	return l.store.HasMember(ctx, groupID, userID)
}

// StoreKey validates and overwrites the group's key. Owner-gated. A failed
// validation leaves any previously stored key unchanged.
func (l *Ledger) StoreKey(ctx context.Context, caller, groupID, keyB64 string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	group, err := l.getGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if caller != group.Owner {
		return fmt.Errorf("%w: only the group owner can store a key", ErrUnauthorized)
	}
	if _, err := cipher.DecodeKey(keyB64); err != nil {
		return err
	}

	if err := l.store.SetGroupKey(ctx, groupID, keyB64); err != nil {
		return err
	}

	l.logger.Info("group key stored", "groupID", groupID)
	return nil
}

// GetKey returns the group's base64 key. Current members only: owner status
// does not substitute for membership. An owner who never added themselves,
// or who removed themselves, cannot read the key.
func (l *Ledger) GetKey(ctx context.Context, caller, groupID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	group, err := l.getGroup(ctx, groupID)
	if err != nil {
		return "", err
	}
	member, err := l.store.HasMember(ctx, groupID, caller)
	if err != nil {
		return "", err
	}
	if !member {
		return "", fmt.Errorf("%w: %s is not a member of group %s", ErrUnauthorized, caller, groupID)
	}
	if !group.HasKey() {
		return "", fmt.Errorf("%w: group %s", ErrNoKeySet, groupID)
	}
	return group.KeyB64, nil
}

// RecordTransaction appends an immutable record to the group's transaction
// log and extends its provenance tree. Only the registrar (the recorder
// role) may record, and the subject user must currently be a member.
// Returns the derived transaction id.
func (l *Ledger) RecordTransaction(ctx context.Context, caller, groupID, userID, fileHash, contentID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.getGroup(ctx, groupID); err != nil {
		return "", err
	}
	if caller != l.registrar {
		return "", fmt.Errorf("%w: only the recorder can record transactions", ErrUnauthorized)
	}
	member, err := l.store.HasMember(ctx, groupID, userID)
	if err != nil {
		return "", err
	}
	if !member {
		return "", fmt.Errorf("%w: %s in group %s", ErrNotAMember, userID, groupID)
	}

	recordedAt := l.now()
	record := types.Transaction{
		ID:         types.TransactionID(groupID, userID, fileHash, contentID, recordedAt),
		GroupID:    groupID,
		UserID:     userID,
		FileHash:   fileHash,
		ContentID:  contentID,
		RecordedAt: recordedAt,
	}

	size, hashes, err := l.store.GetTreeState(ctx, groupID)
	if err != nil {
		return "", err
	}
	newSize, newHashes, err := appendLeaf(size, hashes, leafHash(record))
	if err != nil {
		return "", err
	}

	if err := l.store.AppendTransaction(ctx, record, newSize, newHashes); err != nil {
		return "", err
	}

	l.logger.Info("transaction recorded", "groupID", groupID, "userID", userID, "txID", record.ID, "contentID", contentID)
	return record.ID, nil
}

// ListTransactions returns all transactions for the group. The subject user
// must be a member, or the caller must be the registrar or the group owner
// acting in an administrative read capacity.
func (l *Ledger) ListTransactions(ctx context.Context, caller, groupID, userID string) ([]types.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	group, err := l.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	member, err := l.store.HasMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !member && caller != l.registrar && caller != group.Owner {
		return nil, fmt.Errorf("%w: %s may not list transactions of group %s", ErrUnauthorized, userID, groupID)
	}

	return l.store.ListTransactions(ctx, groupID)
}

// TreeHead returns the size and Merkle root of the group's provenance tree.
// Public read, like IsAuthorized: it reveals nothing beyond log shape.
func (l *Ledger) TreeHead(ctx context.Context, groupID string) (uint64, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.getGroup(ctx, groupID); err != nil {
		return 0, nil, err
	}
	size, hashes, err := l.store.GetTreeState(ctx, groupID)
	if err != nil {
		return 0, nil, err
	}
	root, err := treeRoot(size, hashes)
	if err != nil {
		return 0, nil, err
	}
	return size, root, nil
}

// VerifyLog recomputes the group's Merkle root from the stored transactions
// (in storage iteration order) and compares it against the root implied by
// the persisted compact range. A mismatch means the log or the tree state
// has been tampered with. Access follows the same rule as ListTransactions.
func (l *Ledger) VerifyLog(ctx context.Context, caller, groupID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	group, err := l.getGroup(ctx, groupID)
	if err != nil {
		return false, err
	}
	member, err := l.store.HasMember(ctx, groupID, caller)
	if err != nil {
		return false, err
	}
	if !member && caller != l.registrar && caller != group.Owner {
		return false, fmt.Errorf("%w: %s may not verify group %s", ErrUnauthorized, caller, groupID)
	}

	records, err := l.store.ListTransactions(ctx, groupID)
	if err != nil {
		return false, err
	}
	size, hashes, err := l.store.GetTreeState(ctx, groupID)
	if err != nil {
		return false, err
	}
	if size != uint64(len(records)) {
		return false, nil
	}
	storedRoot, err := treeRoot(size, hashes)
	if err != nil {
		return false, err
	}

	rng := rangeFactory.NewEmptyRange(0)
	for _, record := range records {
		if err := rng.Append(leafHash(record), nil); err != nil {
			return false, fmt.Errorf("recompute log root: %w", err)
		}
	}
	recomputedRoot, err := treeRoot(rng.End(), rng.Hashes())
	if err != nil {
		return false, err
	}

	return bytes.Equal(storedRoot, recomputedRoot), nil
}

func (l *Ledger) getGroup(ctx context.Context, groupID string) (*types.Group, error) {
	group, err := l.store.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, groupID)
		}
		return nil, err
	}
	return group, nil
}

// NewGroupKey generates a fresh random 32-byte group key, base64-encoded.
// Used for owner bootstrap via StoreKey and for rotation on revocation.
func NewGroupKey() (string, error) {
	key := make([]byte, cipher.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate group key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
