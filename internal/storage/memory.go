package storage

import (
	"context"
	"sync"

	"github.com/jcarbonnell/nova-sdk/pkg/types"
)

// MemStore is an in-memory Store used in tests and as a reference for the
// expected state-machine behavior.
type MemStore struct {
	mu      sync.RWMutex
	groups  map[string]*types.Group
	members map[string][]string
	txs     map[string][]types.Transaction
	trees   map[string]treeState
}

type treeState struct {
	size   uint64
	hashes [][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		groups:  make(map[string]*types.Group),
		members: make(map[string][]string),
		txs:     make(map[string][]types.Transaction),
		trees:   make(map[string]treeState),
	}
}

func (s *MemStore) CreateGroup(ctx context.Context, groupID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; ok {
		return ErrExists
	}
	s.groups[groupID] = &types.Group{ID: groupID, Owner: owner}
	s.members[groupID] = nil
	return nil
}

func (s *MemStore) GetGroup(ctx context.Context, groupID string) (*types.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *MemStore) SetGroupKey(ctx context.Context, groupID, keyB64 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	g.KeyB64 = keyB64
	return nil
}

func (s *MemStore) AddMember(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return ErrNotFound
	}
	for _, m := range s.members[groupID] {
		if m == userID {
			return ErrExists
		}
	}
	s.members[groupID] = append(s.members[groupID], userID)
	return nil
}

func (s *MemStore) RemoveMemberRotateKey(ctx context.Context, groupID, userID, newKeyB64 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	members := s.members[groupID]
	for i, m := range members {
		if m == userID {
			// Swap-remove: the last member takes the vacated slot.
			members[i] = members[len(members)-1]
			s.members[groupID] = members[:len(members)-1]
			g.KeyB64 = newKeyB64
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemStore) HasMember(ctx context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[groupID]; !ok {
		return false, ErrNotFound
	}
	for _, m := range s.members[groupID] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[groupID]; !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), s.members[groupID]...), nil
}

func (s *MemStore) AppendTransaction(ctx context.Context, tx types.Transaction, treeSize uint64, treeHashes [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[tx.GroupID]; !ok {
		return ErrNotFound
	}
	s.txs[tx.GroupID] = append(s.txs[tx.GroupID], tx)
	s.trees[tx.GroupID] = treeState{size: treeSize, hashes: copyHashes(treeHashes)}
	return nil
}

func (s *MemStore) ListTransactions(ctx context.Context, groupID string) ([]types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[groupID]; !ok {
		return nil, ErrNotFound
	}
	return append([]types.Transaction(nil), s.txs[groupID]...), nil
}

func (s *MemStore) GetTreeState(ctx context.Context, groupID string) (uint64, [][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[groupID]; !ok {
		return 0, nil, ErrNotFound
	}
	ts, ok := s.trees[groupID]
	if !ok {
		return 0, nil, nil
	}
	return ts.size, copyHashes(ts.hashes), nil
}

func (s *MemStore) Close() error {
	return nil
}

func copyHashes(hashes [][]byte) [][]byte {
	out := make([][]byte, len(hashes))
	for i, h := range hashes {
		out[i] = append([]byte(nil), h...)
	}
	return out
}

// Ensure MemStore implements Store.
var _ Store = (*MemStore)(nil)
