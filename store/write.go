package store

import "github.com/dapperlabs/merklix/node"

// WriteValue appends value's raw bytes to wb and returns the node.Pointer
// a leaf record can embed for it.
func (s *Store) WriteValue(wb *WriteBuffer, value []byte) node.Pointer {
	index, pos := wb.Append(value)
	return node.Pointer{Index: index, Pos: pos, Size: uint32(len(value))}
}

// WriteLeaf appends an encoded leaf record to wb and returns the
// NodePointer a parent can embed for it.
func (s *Store) WriteLeaf(wb *WriteBuffer, digest, key []byte, value node.Pointer) node.NodePointer {
	buf := s.codec.EncodeLeaf(digest, key, value)
	index, pos := wb.Append(buf)
	wb.nodes++
	return node.NodePointer{Digest: digest, Leaf: true, Index: index, Pos: pos}
}

// WriteInternal appends an encoded internal record to wb and returns the
// NodePointer a parent can embed for it. digest is the internal node's
// own digest, H(left.Digest || right.Digest), computed by the caller.
func (s *Store) WriteInternal(wb *WriteBuffer, left, right node.NodePointer, digest []byte) node.NodePointer {
	buf := s.codec.EncodeInternal(left, right)
	index, pos := wb.Append(buf)
	wb.nodes++
	return node.NodePointer{Digest: digest, Leaf: false, Index: index, Pos: pos}
}
