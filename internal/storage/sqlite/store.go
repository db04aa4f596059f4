package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jcarbonnell/nova-sdk/internal/storage"
	"github.com/jcarbonnell/nova-sdk/pkg/types"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// rangeHashSize is the length of a single compact range hash (SHA-256).
const rangeHashSize = 32

// LedgerStore is the SQLite-backed persistence layer for the membership
// ledger. One database file holds all groups.
type LedgerStore struct {
	db     *sql.DB
	dbPath string
}

// Open opens (or creates) the ledger database under basePath.
func Open(basePath string) (*LedgerStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(basePath, "ledger.db")
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=foreign_keys(ON)"+
		"&_pragma=busy_timeout(5000)"+ // Wait up to 5s on lock instead of returning SQLITE_BUSY immediately
		"&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connection pool - SQLite handles concurrent writes poorly
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &LedgerStore{db: db, dbPath: dbPath}, nil
}

func (s *LedgerStore) Close() error {
	return s.db.Close()
}

func (s *LedgerStore) DBPath() string {
	return s.dbPath
}

func (s *LedgerStore) CreateGroup(ctx context.Context, groupID, owner string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM groups WHERE group_id = ?`, groupID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return storage.ErrExists
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO groups (group_id, owner, key_b64, created_at)
		 VALUES (?, ?, '', ?)`,
		groupID, owner, now)
	return err
}

func (s *LedgerStore) GetGroup(ctx context.Context, groupID string) (*types.Group, error) {
	var g types.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT group_id, owner, key_b64 FROM groups WHERE group_id = ?`,
		groupID).Scan(&g.ID, &g.Owner, &g.KeyB64)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *LedgerStore) SetGroupKey(ctx context.Context, groupID, keyB64 string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE groups SET key_b64 = ? WHERE group_id = ?`,
		keyB64, groupID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *LedgerStore) AddMember(ctx context.Context, groupID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return storage.ErrExists
	}

	var next sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(position) + 1 FROM members WHERE group_id = ?`,
		groupID).Scan(&next); err != nil {
		return err
	}
	position := int64(0)
	if next.Valid {
		position = next.Int64
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO members (group_id, user_id, position) VALUES (?, ?, ?)`,
		groupID, userID, position); err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveMemberRotateKey removes a member and overwrites the group key within
// one database transaction, so a revoked membership is never observable next
// to the key it could still decrypt with. Removal is swap-style: the member
// holding the highest position moves into the vacated slot.
func (s *LedgerStore) RemoveMemberRotateKey(ctx context.Context, groupID, userID, newKeyB64 string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var position int64
	err = tx.QueryRowContext(ctx,
		`SELECT position FROM members WHERE group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&position)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}

	var lastUser string
	var lastPosition int64
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, position FROM members WHERE group_id = ?
		 ORDER BY position DESC LIMIT 1`,
		groupID).Scan(&lastUser, &lastPosition)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM members WHERE group_id = ? AND user_id = ?`,
		groupID, userID); err != nil {
		return err
	}
	if lastUser != userID {
		if _, err := tx.ExecContext(ctx,
			`UPDATE members SET position = ? WHERE group_id = ? AND user_id = ?`,
			position, groupID, lastUser); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE groups SET key_b64 = ? WHERE group_id = ?`,
		newKeyB64, groupID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return storage.ErrNotFound
	}

	return tx.Commit()
}

func (s *LedgerStore) HasMember(ctx context.Context, groupID, userID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *LedgerStore) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM members WHERE group_id = ? ORDER BY position`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, err
		}
		members = append(members, user)
	}
	return members, rows.Err()
}

func (s *LedgerStore) AppendTransaction(ctx context.Context, record types.Transaction, treeSize uint64, treeHashes [][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (tx_id, group_id, user_id, file_hash, content_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.GroupID, record.UserID, record.FileHash,
		record.ContentID, record.RecordedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tree_state (group_id, size, range_hashes) VALUES (?, ?, ?)
		 ON CONFLICT(group_id) DO UPDATE SET size = excluded.size, range_hashes = excluded.range_hashes`,
		record.GroupID, int64(treeSize), packHashes(treeHashes)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *LedgerStore) ListTransactions(ctx context.Context, groupID string) ([]types.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_id, group_id, user_id, file_hash, content_id, recorded_at
		 FROM transactions WHERE group_id = ?`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.Transaction
	for rows.Next() {
		var record types.Transaction
		var recordedAt string
		if err := rows.Scan(&record.ID, &record.GroupID, &record.UserID,
			&record.FileHash, &record.ContentID, &recordedAt); err != nil {
			return nil, err
		}
		record.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			slog.Warn("failed to parse recorded_at timestamp", "txID", record.ID, "value", recordedAt, "error", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetTreeState retrieves the provenance tree state for a group.
// Returns (0, nil, nil) if no transaction has been recorded yet.
func (s *LedgerStore) GetTreeState(ctx context.Context, groupID string) (uint64, [][]byte, error) {
	var size int64
	var packed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT size, range_hashes FROM tree_state WHERE group_id = ?`,
		groupID).Scan(&size, &packed)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}

	hashes, err := unpackHashes(packed)
	if err != nil {
		return 0, nil, fmt.Errorf("tree state for group %s: %w", groupID, err)
	}
	return uint64(size), hashes, nil
}

func packHashes(hashes [][]byte) []byte {
	packed := make([]byte, 0, len(hashes)*rangeHashSize)
	for _, h := range hashes {
		packed = append(packed, h...)
	}
	return packed
}

func unpackHashes(packed []byte) ([][]byte, error) {
	if len(packed)%rangeHashSize != 0 {
		return nil, fmt.Errorf("malformed range hashes: %d bytes", len(packed))
	}
	var hashes [][]byte
	for i := 0; i < len(packed); i += rangeHashSize {
		hashes = append(hashes, append([]byte(nil), packed[i:i+rangeHashSize]...))
	}
	return hashes, nil
}

// Ensure LedgerStore implements the storage boundary.
var _ storage.Store = (*LedgerStore)(nil)
