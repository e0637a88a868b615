// Package proof implements the compact inclusion/exclusion proof format
// and stateless verifier described in spec §4.4: a depth, a bit vector
// flagging omitted (dead-end) siblings, the sequence of present sibling
// digests in root-to-leaf order, and a terminal variant.
package proof

import (
	"encoding/binary"
	"fmt"

	"github.com/gammazero/deque"
	"github.com/jrick/bitset"

	"github.com/dapperlabs/merklix/hash"
)

// Variant tags how a proof terminates.
type Variant uint8

const (
	// Exists is an inclusion proof: the requested key is the leaf found.
	Exists Variant = iota
	// Collision is an exclusion proof landing on an unrelated leaf that
	// shares the proof's first Depth bits with the requested key.
	Collision
	// Deadend is an exclusion proof landing on NIL.
	Deadend
)

// Proof is the decoded form of a prove() result.
type Proof struct {
	Depth    int
	Omitted  bitset.Bytes // length Depth; true means the sibling is H.zero
	Siblings [][]byte     // present siblings only, root-to-leaf order

	Variant Variant
	Key     []byte // Collision only: the unrelated leaf's full key
	Value   []byte // Exists and Collision: the leaf's value bytes
}

// Builder accumulates a proof during a single top-down descent, then
// renders it with Finish. The per-depth sibling is pushed as it's
// visited; a gammazero/deque backs the accumulator since proof depth is
// bounded by B but not known up front.
type Builder struct {
	zero     []byte
	omitted  []bool
	siblings deque.Deque
}

// NewBuilder starts an accumulator for a proof over hash function h.
func NewBuilder(h hash.Function) *Builder {
	return &Builder{zero: h.Zero()}
}

// Visit records one level's sibling digest, omitting it from the
// rendered proof (dead-end compression) when it equals H.zero.
func (b *Builder) Visit(siblingDigest []byte) {
	if bytesEqual(siblingDigest, b.zero) {
		b.omitted = append(b.omitted, true)
		return
	}
	b.omitted = append(b.omitted, false)
	cp := make([]byte, len(siblingDigest))
	copy(cp, siblingDigest)
	b.siblings.PushBack(cp)
}

// Finish renders the accumulated proof with the given terminal variant.
func (b *Builder) Finish(variant Variant, key, value []byte) *Proof {
	depth := len(b.omitted)
	bits := bitset.NewBytes(depth)
	for i, o := range b.omitted {
		if o {
			bits.Set(i)
		}
	}
	siblings := make([][]byte, 0, b.siblings.Len())
	for b.siblings.Len() > 0 {
		siblings = append(siblings, b.siblings.PopFront().([]byte))
	}
	return &Proof{
		Depth:    depth,
		Omitted:  bits,
		Siblings: siblings,
		Variant:  variant,
		Key:      key,
		Value:    value,
	}
}

// Encode serializes p to its wire form:
// depth[2] || bitvector[ceil(depth/8)] || present_count[2] ||
// siblings (D bytes each) || variant[1] || variant payload.
func Encode(p *Proof, d int) []byte {
	bitLen := (p.Depth + 7) / 8
	buf := make([]byte, 0, 2+bitLen+2+len(p.Siblings)*d+1+len(p.Key)+4+len(p.Value))

	hdr := make([]byte, 2)
	binary.LittleEndian.PutUint16(hdr, uint16(p.Depth))
	buf = append(buf, hdr...)

	bits := make([]byte, bitLen)
	copy(bits, p.Omitted)
	buf = append(buf, bits...)

	cnt := make([]byte, 2)
	binary.LittleEndian.PutUint16(cnt, uint16(len(p.Siblings)))
	buf = append(buf, cnt...)
	for _, s := range p.Siblings {
		buf = append(buf, s...)
	}

	buf = append(buf, byte(p.Variant))
	switch p.Variant {
	case Exists:
		sz := make([]byte, 4)
		binary.LittleEndian.PutUint32(sz, uint32(len(p.Value)))
		buf = append(buf, sz...)
		buf = append(buf, p.Value...)
	case Collision:
		buf = append(buf, p.Key...)
		sz := make([]byte, 4)
		binary.LittleEndian.PutUint32(sz, uint32(len(p.Value)))
		buf = append(buf, sz...)
		buf = append(buf, p.Value...)
	case Deadend:
	}
	return buf
}

// Decode parses a proof encoded by Encode, given the digest size d and
// key size keySize.
func Decode(buf []byte, d, keySize int) (*Proof, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("proof: too short")
	}
	depth := int(binary.LittleEndian.Uint16(buf[0:2]))
	off := 2
	bitLen := (depth + 7) / 8
	if len(buf) < off+bitLen+2 {
		return nil, fmt.Errorf("proof: truncated bit vector")
	}
	omitted := make(bitset.Bytes, bitLen)
	copy(omitted, buf[off:off+bitLen])
	off += bitLen

	count := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if len(buf) < off+count*d+1 {
		return nil, fmt.Errorf("proof: truncated siblings")
	}
	siblings := make([][]byte, count)
	for i := 0; i < count; i++ {
		siblings[i] = buf[off : off+d]
		off += d
	}

	variant := Variant(buf[off])
	off++

	p := &Proof{
		Depth:    depth,
		Omitted:  omitted,
		Siblings: siblings,
		Variant:  variant,
	}

	switch variant {
	case Exists:
		if len(buf) < off+4 {
			return nil, fmt.Errorf("proof: truncated value size")
		}
		sz := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if len(buf) < off+sz {
			return nil, fmt.Errorf("proof: truncated value")
		}
		p.Value = buf[off : off+sz]
	case Collision:
		if len(buf) < off+keySize+4 {
			return nil, fmt.Errorf("proof: truncated collision key")
		}
		p.Key = buf[off : off+keySize]
		off += keySize
		sz := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if len(buf) < off+sz {
			return nil, fmt.Errorf("proof: truncated value")
		}
		p.Value = buf[off : off+sz]
	case Deadend:
	default:
		return nil, fmt.Errorf("proof: unknown variant %d", variant)
	}
	return p, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
