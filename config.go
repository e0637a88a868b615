package merklix

import (
	"fmt"

	"github.com/dapperlabs/merklix/hash"
)

// Hash is re-exported at the package root so callers configuring a Tree
// only need to import the merklix package itself.
type Hash = hash.Function

// Config parameters a Tree/Store pair (spec §6.5).
type Config struct {
	// Hash is the digest function and zero constant.
	Hash Hash
	// Bits is the key width; must be a positive multiple of 8.
	Bits int
	// Prefix is the store's directory path.
	Prefix string
	// Standalone, when true, makes the store write/read meta records and
	// support historical-root lookup; when false the caller tracks roots
	// and the store only appends nodes.
	Standalone bool
}

// Validate checks the structural requirements from spec §3.
func (c Config) Validate() error {
	if c.Hash == nil {
		return fmt.Errorf("merklix: config: hash is required")
	}
	if c.Bits <= 0 || c.Bits%8 != 0 {
		return fmt.Errorf("merklix: config: bits must be a positive multiple of 8, got %d", c.Bits)
	}
	if c.Prefix == "" {
		return fmt.Errorf("merklix: config: prefix is required")
	}
	return nil
}

// KeySize is B/8, the fixed width of a key in bytes.
func (c Config) KeySize() int { return c.Bits / 8 }
