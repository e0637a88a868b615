package proof

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/merklix/hashfunc"
)

func TestBuilderEncodeDecodeRoundTrip(t *testing.T) {
	h := hashfunc.Blake2b256{}
	b := NewBuilder(h)
	b.Visit(h.Zero())
	b.Visit(h.Digest([]byte("sibling")))

	p := b.Finish(Exists, []byte{0x0C}, []byte("value"))
	buf := Encode(p, h.Size())

	got, err := Decode(buf, h.Size(), 1)
	require.NoError(t, err)
	require.Equal(t, p.Depth, got.Depth)
	require.Equal(t, Exists, got.Variant)
	require.Equal(t, []byte("value"), got.Value)
	require.Len(t, got.Siblings, 1)
	require.True(t, got.Omitted.Get(0))
	require.False(t, got.Omitted.Get(1))
}

func TestVerifyInclusionAndMismatchedRoot(t *testing.T) {
	h := hashfunc.Blake2b256{}
	keyA := []byte{0x00} // 0000
	keyC := []byte{0xC0} // 1100....

	leafA := h.Digest(append(append([]byte{}, keyA...), []byte("a")...))
	leafC := h.Digest(append(append([]byte{}, keyC...), []byte("b")...))
	root := h.Digest(append(append([]byte{}, leafA...), leafC...))

	b := NewBuilder(h)
	b.Visit(leafC)
	p := b.Finish(Exists, keyA, []byte("a"))
	buf := Encode(p, h.Size())

	code, value := Verify(h, 8, 1, root, keyA, buf)
	require.Equal(t, OKInclusion, code)
	require.Equal(t, []byte("a"), value)

	// Tampering with the root hash must fail closed.
	badRoot := append([]byte{}, root...)
	badRoot[0] ^= 0xFF
	code, _ = Verify(h, 8, 1, badRoot, keyA, buf)
	require.Equal(t, MismatchedRoot, code)
}

func TestVerifyDeadend(t *testing.T) {
	h := hashfunc.Blake2b256{}
	b := NewBuilder(h)
	b.Visit(h.Zero())
	p := b.Finish(Deadend, nil, nil)
	buf := Encode(p, h.Size())

	zero := h.Zero()
	root := h.Digest(append(append([]byte{}, zero...), zero...))
	code, _ := Verify(h, 1, 1, root, []byte{0x00}, buf)
	require.Equal(t, OKExclusion, code)
}
