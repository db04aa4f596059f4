package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Transaction is an immutable ledger record linking a plaintext's hash to a
// stored ciphertext's content identifier. The transaction log is append-only;
// records are never updated or deleted.
type Transaction struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	UserID     string    `json:"user_id"`
	FileHash   string    `json:"file_hash"`
	ContentID  string    `json:"content_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TransactionID derives the record identifier as the hex SHA-256 digest over
// the concatenation of the record fields and the ledger commit timestamp.
// Deterministic given its inputs, but unpredictable in advance because the
// timestamp is supplied by the ledger at commit time.
func TransactionID(groupID, userID, fileHash, contentID string, recordedAt time.Time) string {
	preimage := groupID + userID + fileHash + contentID + strconv.FormatInt(recordedAt.UnixNano(), 10)
	sum := sha256.Sum256([]byte(preimage))
	return hex.EncodeToString(sum[:])
}

// FileHash returns the hex SHA-256 digest of a plaintext payload.
func FileHash(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}
