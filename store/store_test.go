package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/merklix/errs"
	"github.com/dapperlabs/merklix/fs"
	"github.com/dapperlabs/merklix/fs/memfs"
	"github.com/dapperlabs/merklix/hashfunc"
	"github.com/dapperlabs/merklix/metrics"
	"github.com/dapperlabs/merklix/node"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{
		FS:           memfs.New(),
		Prefix:       "/s",
		Hash:         hashfunc.Blake2b256{},
		KeySize:      1,
		Standalone:   true,
		Metrics:      metrics.NoopCollector{},
		EvictionSeed: 7,
	})
	require.NoError(t, err)
	return s
}

func TestCommitAndGetRootRoundTrip(t *testing.T) {
	s := openTestStore(t)

	wb := s.BeginCommit()
	valuePtr := s.WriteValue(wb, []byte("hello"))
	digest := s.hash.Digest(append([]byte{0x01}, []byte("hello")...))
	leafPtr := s.WriteLeaf(wb, digest, []byte{0x01}, valuePtr)
	info := s.AppendMeta(wb, leafPtr)
	require.NoError(t, s.Commit(wb, digest, info))

	root, ok := s.CurrentRoot()
	require.True(t, ok)
	require.Equal(t, leafPtr.Index, root.Index)
	require.Equal(t, leafPtr.Pos, root.Pos)

	got, err := s.GetRoot(digest)
	require.NoError(t, err)
	require.Equal(t, root, got)

	rec, err := s.ReadNode(got)
	require.NoError(t, err)
	require.Equal(t, node.KindLeaf, rec.Kind)

	value, err := s.ReadValue(rec.Value)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), value)
}

func TestGetRootMissingReturnsMissingNodeError(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRoot(s.hash.Digest([]byte("absent")))
	require.Error(t, err)
	var missing *errs.MissingNodeError
	require.ErrorAs(t, err, &missing)
}

func TestValidFileIndicesRejectsGaps(t *testing.T) {
	_, err := validFileIndices([]fs.DirEntry{
		{Name: "1", IsFile: true},
		{Name: "3", IsFile: true},
	})
	require.Error(t, err)
	var corrupt *errs.CorruptionError
	require.ErrorAs(t, err, &corrupt)
}

// TestRecoveryDiscardsTornTrailer walks spec §8's S6: after a good
// commit, a second write lands node/value bytes on disk but crashes
// before its meta record is appended (the torn trailer is simulated by
// truncating to a non-meta-aligned offset mid-record). Reopening the
// same files must recover exactly the last good meta, discarding the
// torn bytes; redoing the second write must then succeed as if the
// crash had never happened.
func TestRecoveryDiscardsTornTrailer(t *testing.T) {
	fsys := memfs.New()
	newOpts := func() Options {
		return Options{
			FS:           fsys,
			Prefix:       "/s",
			Hash:         hashfunc.Blake2b256{},
			KeySize:      1,
			Standalone:   true,
			Metrics:      metrics.NoopCollector{},
			EvictionSeed: 7,
		}
	}

	s1, err := Open(newOpts())
	require.NoError(t, err)

	wb1 := s1.BeginCommit()
	valuePtr1 := s1.WriteValue(wb1, []byte("a"))
	digest1 := s1.hash.Digest(append([]byte{0x00}, []byte("a")...))
	leafPtr1 := s1.WriteLeaf(wb1, digest1, []byte{0x00}, valuePtr1)
	info1 := s1.AppendMeta(wb1, leafPtr1)
	require.NoError(t, s1.Commit(wb1, digest1, info1))

	// Start a second write but never call AppendMeta: its node/value
	// bytes are flushed straight to disk the way Commit would, simulating
	// a crash that landed the record but never appended (and synced) the
	// meta record that would have published it.
	wb2 := s1.BeginCommit()
	valuePtr2 := s1.WriteValue(wb2, []byte("b"))
	digest2 := s1.hash.Digest(append([]byte{0xC0}, []byte("b")...))
	_ = s1.WriteLeaf(wb2, digest2, []byte{0xC0}, valuePtr2)
	for _, chunk := range wb2.Flush() {
		f, err := fsys.Open(s1.filePath(chunk.Index), true)
		require.NoError(t, err)
		_, err = f.Append(chunk.Data)
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		require.NoError(t, f.Close())
	}

	// Also truncate off the trailing byte, so the torn write lands mid
	// record rather than conveniently record-aligned.
	f, err := fsys.Open(s1.filePath(s1.appendIndex), false)
	require.NoError(t, err)
	size, err := f.Size()
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size-1))
	require.NoError(t, f.Close())
	require.NoError(t, s1.Close())

	s2, err := Open(newOpts())
	require.NoError(t, err)

	root, ok := s2.CurrentRoot()
	require.True(t, ok)
	require.Equal(t, leafPtr1.Index, root.Index)
	require.Equal(t, leafPtr1.Pos, root.Pos)

	got, err := s2.GetRoot(digest1)
	require.NoError(t, err)
	require.Equal(t, leafPtr1, got)

	// Redo the second write against the recovered store; it must
	// succeed exactly as if the crash had never happened.
	wb3 := s2.BeginCommit()
	valuePtr3 := s2.WriteValue(wb3, []byte("b"))
	leafPtr3 := s2.WriteLeaf(wb3, digest2, []byte{0xC0}, valuePtr3)
	info3 := s2.AppendMeta(wb3, leafPtr3)
	require.NoError(t, s2.Commit(wb3, digest2, info3))

	got2, err := s2.GetRoot(digest2)
	require.NoError(t, err)
	require.Equal(t, leafPtr3, got2)
}

func TestValidFileIndicesSkipsNonFilesAndZero(t *testing.T) {
	indices, err := validFileIndices([]fs.DirEntry{
		{Name: "0", IsFile: true},
		{Name: "subdir", IsFile: false},
		{Name: "not-a-number", IsFile: true},
		{Name: "1", IsFile: true},
		{Name: "2", IsFile: true},
	})
	require.NoError(t, err)
	require.Equal(t, []uint16{1, 2}, indices)
}
