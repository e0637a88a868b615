// Package merklixtest provides a temp-dir-per-test store/tree opener,
// modeled on utils/unittest.RunWithBadgerDB/RunWithLevelDB: open, hand
// to the test function, clean up on return.
package merklixtest

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/merklix"
	"github.com/dapperlabs/merklix/fs"
	"github.com/dapperlabs/merklix/fs/osfs"
	"github.com/dapperlabs/merklix/hashfunc"
)

// RunWithTree opens a standalone tree under a fresh temp directory with
// a 256-bit blake2b key space, hands it to f, then closes and removes it.
func RunWithTree(t *testing.T, f func(tr *merklix.Tree)) {
	RunWithTreeBits(t, 256, f)
}

// RunWithTreeBits is RunWithTree with a caller-chosen key width.
func RunWithTreeBits(t *testing.T, bits int, f func(tr *merklix.Tree)) {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("merklix-test-%d", rand.Uint64()))

	tr, err := merklix.Open(merklix.Config{
		Hash:       hashfunc.Blake2b256{},
		Bits:       bits,
		Prefix:     dir,
		Standalone: true,
	}, merklix.Options{FS: osfs.New(), EvictionSeed: 1})
	require.NoError(t, err)

	defer func() {
		require.NoError(t, tr.Close())
		require.NoError(t, tr.Destroy())
		os.RemoveAll(dir)
	}()

	f(tr)
}

// RunWithMemTree is RunWithTree backed by an in-memory filesystem,
// for fast unit tests that don't need real disk behavior.
func RunWithMemTree(t *testing.T, bits int, mfs fs.FileSystem, f func(tr *merklix.Tree)) {
	tr, err := merklix.Open(merklix.Config{
		Hash:       hashfunc.Blake2b256{},
		Bits:       bits,
		Prefix:     "/tree",
		Standalone: true,
	}, merklix.Options{FS: mfs, EvictionSeed: 1})
	require.NoError(t, err)

	defer func() {
		require.NoError(t, tr.Close())
	}()

	f(tr)
}
