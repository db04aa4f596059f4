package sqlite_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcarbonnell/nova-sdk/internal/storage"
	"github.com/jcarbonnell/nova-sdk/internal/storage/sqlite"
	"github.com/jcarbonnell/nova-sdk/pkg/types"
)

func openStore(t *testing.T) *sqlite.LedgerStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "nova-sqlite-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := sqlite.Open(tmpDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLedgerStore_OpenAndClose(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "nova-sqlite-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	store, err := sqlite.Open(tmpDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	_, err = os.Stat(store.DBPath())
	assert.NoError(t, err, "database file should exist")

	require.NoError(t, store.Close())

	// Reopen against the same directory.
	store2, err := sqlite.Open(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store2.Close())
}

func TestLedgerStore_CreateGroup(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "g1", "alice.near"))

	group, err := store.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", group.ID)
	assert.Equal(t, "alice.near", group.Owner)
	assert.False(t, group.HasKey())

	err = store.CreateGroup(ctx, "g1", "bob.near")
	assert.ErrorIs(t, err, storage.ErrExists)

	_, err = store.GetGroup(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedgerStore_SetGroupKey(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "g1", "alice.near"))
	require.NoError(t, store.SetGroupKey(ctx, "g1", "a2V5LW1hdGVyaWFs"))

	group, err := store.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "a2V5LW1hdGVyaWFs", group.KeyB64)
	assert.True(t, group.HasKey())

	err = store.SetGroupKey(ctx, "missing", "a2V5")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedgerStore_Members(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "g1", "alice.near"))
	require.NoError(t, store.AddMember(ctx, "g1", "m1.near"))
	require.NoError(t, store.AddMember(ctx, "g1", "m2.near"))
	require.NoError(t, store.AddMember(ctx, "g1", "m3.near"))

	err := store.AddMember(ctx, "g1", "m1.near")
	assert.ErrorIs(t, err, storage.ErrExists)

	ok, err := store.HasMember(ctx, "g1", "m2.near")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasMember(ctx, "g1", "stranger.near")
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := store.ListMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1.near", "m2.near", "m3.near"}, members)
}

func TestLedgerStore_RemoveMemberRotateKey(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "g1", "alice.near"))
	require.NoError(t, store.SetGroupKey(ctx, "g1", "b2xkLWtleQ=="))
	require.NoError(t, store.AddMember(ctx, "g1", "m1.near"))
	require.NoError(t, store.AddMember(ctx, "g1", "m2.near"))
	require.NoError(t, store.AddMember(ctx, "g1", "m3.near"))

	// Removing a middle member swaps the last member into its slot.
	require.NoError(t, store.RemoveMemberRotateKey(ctx, "g1", "m1.near", "bmV3LWtleQ=="))

	members, err := store.ListMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m3.near", "m2.near"}, members)

	group, err := store.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "bmV3LWtleQ==", group.KeyB64)

	// Removing the last member needs no swap.
	require.NoError(t, store.RemoveMemberRotateKey(ctx, "g1", "m2.near", "bmV3ZXIta2V5"))
	members, err = store.ListMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m3.near"}, members)

	err = store.RemoveMemberRotateKey(ctx, "g1", "stranger.near", "aw==")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Key is untouched on a failed removal.
	group, err = store.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "bmV3ZXIta2V5", group.KeyB64)
}

func TestLedgerStore_Transactions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "g1", "alice.near"))

	recordedAt := time.Date(2026, 3, 14, 9, 26, 53, 590000000, time.UTC)
	record := types.Transaction{
		ID:         types.TransactionID("g1", "m1.near", "deadbeef", "QmTest", recordedAt),
		GroupID:    "g1",
		UserID:     "m1.near",
		FileHash:   "deadbeef",
		ContentID:  "QmTest",
		RecordedAt: recordedAt,
	}
	hashes := [][]byte{make([]byte, 32)}
	require.NoError(t, store.AppendTransaction(ctx, record, 1, hashes))

	records, err := store.ListTransactions(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.Equal(t, "m1.near", records[0].UserID)
	assert.Equal(t, "deadbeef", records[0].FileHash)
	assert.Equal(t, "QmTest", records[0].ContentID)
	assert.True(t, recordedAt.Equal(records[0].RecordedAt))

	// Duplicate transaction ids are rejected by the primary key.
	err = store.AppendTransaction(ctx, record, 2, hashes)
	assert.Error(t, err)

	records, err = store.ListTransactions(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLedgerStore_TreeState(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, "g1", "alice.near"))

	size, hashes, err := store.GetTreeState(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Nil(t, hashes)

	first := make([]byte, 32)
	second := make([]byte, 32)
	first[0], second[0] = 0xaa, 0xbb

	record := types.Transaction{
		ID: "tx1", GroupID: "g1", UserID: "m1.near",
		FileHash: "aa", ContentID: "QmA", RecordedAt: time.Now().UTC(),
	}
	require.NoError(t, store.AppendTransaction(ctx, record, 3, [][]byte{first, second}))

	size, hashes, err = store.GetTreeState(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), size)
	require.Len(t, hashes, 2)
	assert.Equal(t, first, hashes[0])
	assert.Equal(t, second, hashes[1])
}
