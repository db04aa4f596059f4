package ledger

import (
	"fmt"
	"strings"

	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/rfc6962"

	"github.com/jcarbonnell/nova-sdk/pkg/types"
)

// Each group's transaction log doubles as a tamper-evident provenance trail:
// every appended record becomes an RFC 6962 leaf of a per-group Merkle tree,
// maintained as a compact range whose hashes persist alongside the log.

var rangeFactory = &compact.RangeFactory{Hash: rfc6962.DefaultHasher.HashChildren}

func leafHash(record types.Transaction) []byte {
	canonical := strings.Join([]string{
		record.ID,
		record.GroupID,
		record.UserID,
		record.FileHash,
		record.ContentID,
	}, "\n")
	return rfc6962.DefaultHasher.HashLeaf([]byte(canonical))
}

// appendLeaf extends a compact range of the given size and hashes with one
// leaf, returning the new size and range hashes.
func appendLeaf(size uint64, hashes [][]byte, leaf []byte) (uint64, [][]byte, error) {
	rng, err := rangeFactory.NewRange(0, size, hashes)
	if err != nil {
		return 0, nil, fmt.Errorf("restore compact range at size %d: %w", size, err)
	}
	if err := rng.Append(leaf, nil); err != nil {
		return 0, nil, fmt.Errorf("append leaf: %w", err)
	}
	return rng.End(), rng.Hashes(), nil
}

// treeRoot computes the root hash of a compact range.
func treeRoot(size uint64, hashes [][]byte) ([]byte, error) {
	if size == 0 {
		return rfc6962.DefaultHasher.EmptyRoot(), nil
	}
	rng, err := rangeFactory.NewRange(0, size, hashes)
	if err != nil {
		return nil, fmt.Errorf("restore compact range at size %d: %w", size, err)
	}
	root, err := rng.GetRootHash(nil)
	if err != nil {
		return nil, fmt.Errorf("compute root at size %d: %w", size, err)
	}
	return root, nil
}
