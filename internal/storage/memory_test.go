package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcarbonnell/nova-sdk/internal/storage"
	"github.com/jcarbonnell/nova-sdk/pkg/types"
)

func TestMemStore_SwapRemove(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "g1", "alice.near"))
	for _, user := range []string{"m1", "m2", "m3", "m4"} {
		require.NoError(t, store.AddMember(ctx, "g1", user))
	}

	// Removal swaps the last member into the vacated slot instead of
	// shifting the tail.
	require.NoError(t, store.RemoveMemberRotateKey(ctx, "g1", "m2", "bmV3"))

	members, err := store.ListMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m4", "m3"}, members)

	group, err := store.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "bmV3", group.KeyB64)

	err = store.RemoveMemberRotateKey(ctx, "g1", "ghost", "aw==")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemStore_TreeStateIsolation(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "g1", "alice.near"))

	hash := make([]byte, 32)
	hash[0] = 0x01
	record := types.Transaction{
		ID: "tx1", GroupID: "g1", UserID: "m1",
		FileHash: "aa", ContentID: "QmA", RecordedAt: time.Now(),
	}
	require.NoError(t, store.AppendTransaction(ctx, record, 1, [][]byte{hash}))

	// Mutating the caller's slice must not reach the stored state.
	hash[0] = 0xff

	_, hashes, err := store.GetTreeState(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	assert.Equal(t, byte(0x01), hashes[0][0])

	// Nor must mutating a returned copy.
	hashes[0][0] = 0xee
	_, again, err := store.GetTreeState(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), again[0][0])
}

func TestMemStore_GroupLifecycle(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "g1", "alice.near"))
	assert.ErrorIs(t, store.CreateGroup(ctx, "g1", "bob.near"), storage.ErrExists)

	assert.ErrorIs(t, store.SetGroupKey(ctx, "missing", "aw=="), storage.ErrNotFound)
	assert.ErrorIs(t, store.AddMember(ctx, "missing", "m1"), storage.ErrNotFound)

	_, err := store.GetGroup(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
