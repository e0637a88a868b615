package store

import (
	"encoding/binary"
	"fmt"

	"github.com/dapperlabs/merklix/errs"
	"github.com/dapperlabs/merklix/hash"
	"github.com/dapperlabs/merklix/node"
)

// MetaSize is the fixed byte length of a meta record (spec §6.3).
const MetaSize = 36

// MetaMagic identifies a meta record during the recovery scan.
const MetaMagic = 0x6d6b6c78

// ChecksumSize is the length of a meta record's truncated digest.
const ChecksumSize = 20

// Meta is the decoded form of a meta record: it references the root
// node and the previous meta record, forming the backwards-linked meta
// chain (spec §4.3, §6.3).
type Meta struct {
	MetaIndex uint16
	MetaPos   uint32
	Root      node.NodePointer
}

// encodeMeta serializes m, computing its trailing checksum over the
// preceding 16 bytes with h.
func encodeMeta(m Meta, h hash.Function) []byte {
	buf := make([]byte, MetaSize)
	binary.LittleEndian.PutUint32(buf[0:], MetaMagic)
	rootIndex := m.Root.Index
	if m.Root.Leaf {
		rootIndex |= 0x8000
	}
	binary.LittleEndian.PutUint16(buf[4:], m.MetaIndex)
	binary.LittleEndian.PutUint32(buf[6:], m.MetaPos)
	binary.LittleEndian.PutUint16(buf[10:], rootIndex)
	binary.LittleEndian.PutUint32(buf[12:], m.Root.Pos)

	sum := h.Digest(buf[:16])
	copy(buf[16:16+ChecksumSize], sum[:ChecksumSize])
	return buf
}

// decodeMeta parses and verifies a meta record. It returns a
// CorruptionError if the magic or checksum don't match.
func decodeMeta(buf []byte, h hash.Function) (Meta, error) {
	if len(buf) < MetaSize {
		return Meta{}, fmt.Errorf("store: meta record too short: %d < %d", len(buf), MetaSize)
	}
	magic := binary.LittleEndian.Uint32(buf[0:])
	if magic != MetaMagic {
		return Meta{}, &errs.CorruptionError{Reason: fmt.Sprintf("bad meta magic %x", magic)}
	}

	sum := h.Digest(buf[:16])
	for i := 0; i < ChecksumSize; i++ {
		if buf[16+i] != sum[i] {
			return Meta{}, &errs.CorruptionError{Reason: "bad meta checksum"}
		}
	}

	metaIndex := binary.LittleEndian.Uint16(buf[4:])
	metaPos := binary.LittleEndian.Uint32(buf[6:])
	rootRaw := binary.LittleEndian.Uint16(buf[10:])
	rootPos := binary.LittleEndian.Uint32(buf[12:])

	return Meta{
		MetaIndex: metaIndex,
		MetaPos:   metaPos,
		Root: node.NodePointer{
			Leaf:  rootRaw&0x8000 != 0,
			Index: rootRaw &^ 0x8000,
			Pos:   rootPos,
		},
	}, nil
}
