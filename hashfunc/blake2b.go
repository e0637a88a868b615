// Package hashfunc provides ready-made implementations of merklix.Hash so
// callers don't have to write their own digest(bytes) -> fixed-width
// wrapper for common hash functions.
package hashfunc

import (
	"golang.org/x/crypto/blake2b"

	"github.com/dapperlabs/merklix/hash"
)

var _ hash.Function = Blake2b256{}

// Blake2b256 is a merklix.Hash backed by blake2b-256, producing 32-byte
// digests. It mirrors the single-purpose hash wrapper pattern used by
// flow-go's sparse-merkle-trie prototype (storage/merkle), which also
// hashes everything through blake2b.
type Blake2b256 struct{}

// Digest returns blake2b256(data).
func (Blake2b256) Digest(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// Size returns 32, the blake2b-256 digest length.
func (Blake2b256) Size() int { return 32 }

var zero32 = make([]byte, 32)

// Zero returns the all-zero 32-byte digest.
func (Blake2b256) Zero() []byte {
	out := make([]byte, 32)
	copy(out, zero32)
	return out
}
