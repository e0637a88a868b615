package proof

import (
	"github.com/dapperlabs/merklix/hash"
)

// Code is the total result of Verify: every input produces exactly one
// of these, never an error (spec §4.4, §7).
type Code uint8

const (
	OKInclusion Code = iota
	OKExclusion
	MismatchedRoot
	Malformed
	DepthTooLarge
	UnexpectedNil
	SameKey
)

func (c Code) String() string {
	switch c {
	case OKInclusion:
		return "OK_INCLUSION"
	case OKExclusion:
		return "OK_EXCLUSION"
	case MismatchedRoot:
		return "MISMATCHED_ROOT"
	case Malformed:
		return "MALFORMED"
	case DepthTooLarge:
		return "DEPTH_TOO_LARGE"
	case UnexpectedNil:
		return "UNEXPECTED_NIL"
	case SameKey:
		return "SAME_KEY"
	default:
		return "UNKNOWN"
	}
}

// Verify is the stateless proof verifier (spec §4.4). bits is B, the key
// width in bits; keySize is B/8.
func Verify(h hash.Function, bits, keySize int, rootHash, key, proofBytes []byte) (Code, []byte) {
	p, err := Decode(proofBytes, h.Size(), keySize)
	if err != nil {
		return Malformed, nil
	}
	if p.Depth > bits {
		return DepthTooLarge, nil
	}
	if len(key) != keySize {
		return Malformed, nil
	}

	var leafDigest []byte
	switch p.Variant {
	case Exists:
		leafDigest = h.Digest(append(append([]byte{}, key...), p.Value...))
	case Collision:
		if len(p.Key) != keySize {
			return Malformed, nil
		}
		if bytesEqual(p.Key, key) {
			return SameKey, nil
		}
		if !sharesPrefix(p.Key, key, p.Depth) {
			return UnexpectedNil, nil
		}
		if p.Depth < bits && bitAt(p.Key, p.Depth) == bitAt(key, p.Depth) {
			return UnexpectedNil, nil
		}
		leafDigest = h.Digest(append(append([]byte{}, p.Key...), p.Value...))
	case Deadend:
		leafDigest = h.Zero()
	default:
		return Malformed, nil
	}

	digest := leafDigest
	siblingIdx := len(p.Siblings) - 1
	for level := p.Depth - 1; level >= 0; level-- {
		var sibling []byte
		if p.Omitted.Get(level) {
			sibling = h.Zero()
		} else {
			if siblingIdx < 0 {
				return Malformed, nil
			}
			sibling = p.Siblings[siblingIdx]
			siblingIdx--
		}
		if bitAt(key, level) == 0 {
			digest = h.Digest(append(append([]byte{}, digest...), sibling...))
		} else {
			digest = h.Digest(append(append([]byte{}, sibling...), digest...))
		}
	}
	if siblingIdx != -1 {
		return Malformed, nil
	}

	if !bytesEqual(digest, rootHash) {
		return MismatchedRoot, nil
	}

	if p.Variant == Exists {
		return OKInclusion, p.Value
	}
	return OKExclusion, nil
}

func bitAt(key []byte, depth int) byte {
	byteIdx := depth / 8
	bitIdx := 7 - depth%8
	return (key[byteIdx] >> uint(bitIdx)) & 1
}

func sharesPrefix(a, b []byte, bits int) bool {
	for i := 0; i < bits; i++ {
		if bitAt(a, i) != bitAt(b, i) {
			return false
		}
	}
	return true
}
