package ledger

import (
	"errors"

	"github.com/jcarbonnell/nova-sdk/internal/cipher"
)

// Ledger fault kinds. These are terminal: they indicate a logic or permission
// violation, never a transient condition, and must not be retried. Callers
// match them with errors.Is.
var (
	ErrNotFound      = errors.New("group not found")
	ErrAlreadyExists = errors.New("group already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotAMember    = errors.New("user not a member")
	ErrAlreadyMember = errors.New("user already a member")
	ErrNoKeySet      = errors.New("no key set")

	// ErrInvalidKey is shared with the codec: both reject keys that do not
	// decode to exactly 32 bytes.
	ErrInvalidKey = cipher.ErrInvalidKey
)
