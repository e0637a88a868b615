package node

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func digest(b byte, n int) []byte {
	d := make([]byte, n)
	for i := range d {
		d[i] = b
	}
	return d
}

func TestInternalRoundTrip(t *testing.T) {
	c := Codec{D: 32, KeySize: 4}
	left := NodePointer{Digest: digest(1, 32), Leaf: true, Index: 7, Pos: 1000}
	right := NodePointer{Digest: digest(2, 32), Leaf: false, Index: 9, Pos: 2000}

	buf := c.EncodeInternal(left, right)
	require.Len(t, buf, c.Size())

	rec, err := c.DecodeInternal(buf)
	require.NoError(t, err)
	require.Equal(t, KindInternal, rec.Kind)
	require.True(t, bytes.Equal(left.Digest, rec.Left.Digest))
	require.Equal(t, left.Leaf, rec.Left.Leaf)
	require.Equal(t, left.Index, rec.Left.Index)
	require.Equal(t, left.Pos, rec.Left.Pos)
	require.True(t, bytes.Equal(right.Digest, rec.Right.Digest))
	require.Equal(t, right.Leaf, rec.Right.Leaf)
	require.Equal(t, right.Index, rec.Right.Index)
	require.Equal(t, right.Pos, rec.Right.Pos)
}

func TestLeafRoundTrip(t *testing.T) {
	c := Codec{D: 32, KeySize: 4}
	key := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	d := digest(3, 32)
	value := Pointer{Index: 5, Pos: 42, Size: 128}

	buf := c.EncodeLeaf(d, key, value)
	require.Len(t, buf, c.Size())

	rec, err := c.DecodeLeaf(buf)
	require.NoError(t, err)
	require.Equal(t, KindLeaf, rec.Kind)
	require.True(t, bytes.Equal(d, rec.Digest))
	require.True(t, bytes.Equal(key, rec.Key))
	require.Equal(t, value, rec.Value)
}

func TestTagBitSurvivesMaxIndex(t *testing.T) {
	c := Codec{D: 32, KeySize: 4}
	left := NodePointer{Digest: digest(1, 32), Leaf: true, Index: MaxTaggedFileIndex, Pos: 1}
	right := NodePointer{Digest: digest(2, 32), Leaf: true, Index: MaxTaggedFileIndex, Pos: 2}

	buf := c.EncodeInternal(left, right)
	rec, err := c.DecodeInternal(buf)
	require.NoError(t, err)
	require.Equal(t, uint16(MaxTaggedFileIndex), rec.Left.Index)
	require.True(t, rec.Left.Leaf)
	require.Equal(t, uint16(MaxTaggedFileIndex), rec.Right.Index)
	require.True(t, rec.Right.Leaf)
}

// TestRightIndexSurvivesPastMaxTaggedFileIndex covers spec §9's
// asymmetric masking: a right child's index field is never tagged, so a
// file index above MaxTaggedFileIndex (up to the full 0xFFFF range) must
// round-trip exactly for both a leaf and an internal right child. A left
// child pinned at MaxTaggedFileIndex is included for contrast, exercising
// both tag mechanisms (index-tagged left, position-tagged right) in the
// same record.
func TestRightIndexSurvivesPastMaxTaggedFileIndex(t *testing.T) {
	c := Codec{D: 32, KeySize: 4}
	const rightIndex = uint16(0xFFFF)

	left := NodePointer{Digest: digest(1, 32), Leaf: false, Index: MaxTaggedFileIndex, Pos: 1}
	right := NodePointer{Digest: digest(2, 32), Leaf: true, Index: rightIndex, Pos: 0x7FFFFFFE}

	buf := c.EncodeInternal(left, right)
	rec, err := c.DecodeInternal(buf)
	require.NoError(t, err)
	require.Equal(t, rightIndex, rec.Right.Index)
	require.True(t, rec.Right.Leaf)
	require.Equal(t, uint32(0x7FFFFFFE), rec.Right.Pos)

	// Same right index, but an internal right child, to confirm the leaf
	// tag (not the index) is what actually flips.
	right.Leaf = false
	buf = c.EncodeInternal(left, right)
	rec, err = c.DecodeInternal(buf)
	require.NoError(t, err)
	require.Equal(t, rightIndex, rec.Right.Index)
	require.False(t, rec.Right.Leaf)
}

func TestSizeIsMaxOfBothKinds(t *testing.T) {
	c := Codec{D: 32, KeySize: 4}
	require.Equal(t, c.InternalSize(), c.Size())
	require.True(t, c.Size() >= c.LeafSize())
}
