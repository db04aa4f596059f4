package storage

import (
	"context"
	"errors"

	"github.com/jcarbonnell/nova-sdk/pkg/types"
)

var (
	// ErrNotFound is returned when a group, member or record is absent.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a group or member is already present.
	ErrExists = errors.New("already exists")
)

// Store is the persistence boundary for the membership ledger. It holds state
// and enforces nothing: all authorization and lifecycle rules live in the
// ledger on top of it. Implementations must apply each call atomically.
type Store interface {
	// CreateGroup creates a group with no members and no key.
	// Returns ErrExists if the group id is taken.
	CreateGroup(ctx context.Context, groupID, owner string) error

	// GetGroup returns the group record, or ErrNotFound.
	GetGroup(ctx context.Context, groupID string) (*types.Group, error)

	// SetGroupKey overwrites the group's stored key.
	SetGroupKey(ctx context.Context, groupID, keyB64 string) error

	// AddMember appends a user to the group's membership set.
	// Returns ErrExists if the user is already a member.
	AddMember(ctx context.Context, groupID, userID string) error

	// RemoveMemberRotateKey removes a member and overwrites the group key in
	// a single atomic state transition. Returns ErrNotFound if the user is
	// not a member. Removal is swap-style: the relative order of the
	// remaining members is not preserved.
	RemoveMemberRotateKey(ctx context.Context, groupID, userID, newKeyB64 string) error

	// HasMember reports whether the user is currently a member.
	HasMember(ctx context.Context, groupID, userID string) (bool, error)

	// ListMembers returns the membership set in storage order.
	ListMembers(ctx context.Context, groupID string) ([]string, error)

	// AppendTransaction appends an immutable transaction record and persists
	// the group's updated provenance tree state in the same transition.
	AppendTransaction(ctx context.Context, tx types.Transaction, treeSize uint64, treeHashes [][]byte) error

	// ListTransactions returns all transactions for a group. Order is
	// unspecified but stable per storage iteration.
	ListTransactions(ctx context.Context, groupID string) ([]types.Transaction, error)

	// GetTreeState returns the group's provenance tree size and compact
	// range hashes. Returns (0, nil, nil) if nothing has been recorded yet.
	GetTreeState(ctx context.Context, groupID string) (size uint64, hashes [][]byte, err error)

	Close() error
}
