// Package types holds the wire-level records shared by the ledger, the
// workflow service and the HTTP API.
package types

// Group is an access-control domain with a single owner, a membership set
// and an optional symmetric key.
type Group struct {
	ID    string `json:"group_id"`
	Owner string `json:"owner"`

	// KeyB64 is the base64 encoding of the group's current 32-byte key.
	// Empty until the first StoreKey or the first rotation.
	KeyB64 string `json:"key_b64,omitempty"`
}

// HasKey reports whether a key has been established for the group.
func (g *Group) HasKey() bool {
	return g.KeyB64 != ""
}
