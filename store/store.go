// Package store implements the append-only flat-file store described in
// spec §4.3: a directory of numbered files, a bounded open-file cache
// with random eviction, meta-record write/recovery, and a root cache for
// historical-root lookup.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dapperlabs/merklix/errs"
	"github.com/dapperlabs/merklix/fs"
	"github.com/dapperlabs/merklix/hash"
	"github.com/dapperlabs/merklix/metrics"
	"github.com/dapperlabs/merklix/node"
	"github.com/dapperlabs/merklix/tracing"
)

// MaxFiles is the largest representable file index. It is capped at
// 0xFFFF (not 0x7FFF) because most pointers — value pointers and a
// node's own storage slot as addressed by the file name — never reuse
// the leaf/internal tag bit; only the tagged node pointers (§6.2) are
// bounded to MaxTaggedFileIndex (spec §9).
const MaxFiles = node.MaxTaggedFileIndex<<1 | 1 // 0xFFFF

// rootCacheSize bounds the LRU of digest -> resolved root pointer
// (spec glossary: "Root cache").
const rootCacheSize = 256

// Options configures a Store. It mirrors merklix.Config but lives in
// this package (rather than depending on the root package) to avoid an
// import cycle, since the root package depends on store.
type Options struct {
	FS         fs.FileSystem
	Prefix     string
	Hash       hash.Function
	KeySize    int // B/8
	Standalone bool
	Metrics    metrics.Collector
	Log        zerolog.Logger
	Tracer     *tracing.Tracer
	// EvictionSeed seeds the open-file cache's eviction RNG. Tests pin
	// this for reproducible eviction order (spec §9).
	EvictionSeed int64
}

// Store is an open, append-only flat-file node/value store.
type Store struct {
	fsys       fs.FileSystem
	prefix     string
	hash       hash.Function
	codec      node.Codec
	standalone bool
	metrics    metrics.Collector
	log        zerolog.Logger
	tracer     *tracing.Tracer

	cache *fileCache

	// rootMu guards state, hasMeta and the rootCache together, per
	// spec §5 ("a single mutex around root reads ... so that the
	// rootCache and lastMeta are updated atomically").
	rootMu    sync.Mutex
	state     Meta
	hasMeta   bool
	rootCache *lru.Cache // string(raw digest bytes) -> node.NodePointer

	// lastMetaIndex/lastMetaPos is the on-disk location of the most
	// recently written (or recovered) meta record itself, distinct from
	// state.Root which is the root it references. The next meta record
	// links to this location, forming the backwards meta chain (§4.3).
	lastMetaIndex uint16
	lastMetaPos   uint32

	highestIndex uint16
	appendIndex  uint16
	appendPos    uint32

	closed bool
}

// Open opens (or creates) the store at opts.Prefix.
func Open(opts Options) (*Store, error) {
	if opts.FS == nil {
		return nil, fmt.Errorf("store: filesystem is required")
	}
	if err := opts.FS.Mkdirp(opts.Prefix, 0755); err != nil {
		return nil, errors.Wrapf(err, "store: mkdirp %s", opts.Prefix)
	}

	entries, err := opts.FS.Readdir(opts.Prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "store: readdir %s", opts.Prefix)
	}

	indices, err := validFileIndices(entries)
	if err != nil {
		return nil, err
	}

	cacheObj, _ := lru.New(rootCacheSize)

	m := opts.Metrics
	if m == nil {
		m = metrics.NoopCollector{}
	}

	s := &Store{
		fsys:         opts.FS,
		prefix:       opts.Prefix,
		hash:         opts.Hash,
		codec:        node.Codec{D: opts.Hash.Size(), KeySize: opts.KeySize},
		standalone:   opts.Standalone,
		metrics:      m,
		log:          opts.Log,
		tracer:       opts.Tracer,
		cache:        newFileCache(opts.EvictionSeed, m),
		rootCache:    cacheObj,
		highestIndex: 1,
	}

	if len(indices) == 0 {
		s.highestIndex = 1
		s.appendIndex = 1
		s.appendPos = 0
		if opts.Standalone {
			s.hasMeta = false
		}
		s.cache.setCurrent(s.highestIndex)
		return s, nil
	}
	s.highestIndex = indices[len(indices)-1]

	if opts.Standalone {
		if err := s.recover(); err != nil {
			return nil, err
		}
	}
	s.cache.setCurrent(s.highestIndex)

	// Position the append cursor at the current end of the highest file.
	f, err := s.openFile(s.highestIndex)
	if err != nil {
		return nil, err
	}
	size, err := f.file.Size()
	if err != nil {
		return nil, err
	}
	s.appendIndex = s.highestIndex
	s.appendPos = uint32(size)

	return s, nil
}

// validFileIndices collects, validates and sorts numeric file names,
// rejecting index 0, indices above MaxFiles, and non-files. It requires
// the sorted indices to be contiguous — the corrected form of the gap
// check (spec §9, Open Question 1): files[i].index must equal
// files[i-1].index + 1, not compare an index against itself.
func validFileIndices(entries []fs.DirEntry) ([]uint16, error) {
	var indices []int
	for _, e := range entries {
		if !e.IsFile {
			continue
		}
		n, err := strconv.Atoi(e.Name)
		if err != nil {
			continue
		}
		if n <= 0 || n > MaxFiles {
			continue
		}
		indices = append(indices, n)
	}
	sort.Ints(indices)

	out := make([]uint16, len(indices))
	for i, n := range indices {
		if i > 0 && indices[i] != indices[i-1]+1 {
			return nil, &errs.CorruptionError{
				Reason: fmt.Sprintf("store: gap in file sequence between %d and %d", indices[i-1], indices[i]),
			}
		}
		out[i] = uint16(n)
	}
	return out, nil
}

func (s *Store) filePath(index uint16) string {
	return filepath.Join(s.prefix, strconv.Itoa(int(index)))
}

func (s *Store) openFile(index uint16) (*fileHandle, error) {
	return s.cache.open(index, func(idx uint16) (fs.File, error) {
		return s.fsys.Open(s.filePath(idx), true)
	})
}

// NodeSize is the fixed on-disk record size (spec §6.2).
func (s *Store) NodeSize() int { return s.codec.Size() }

// Hash returns the store's configured hash function.
func (s *Store) Hash() hash.Function { return s.hash }

// readAt issues one positional read against file index, tracking the
// outstanding-read counter so a concurrent eviction can't close the file
// out from under it (spec §5).
func (s *Store) readAt(index uint16, pos uint32, n int) ([]byte, error) {
	h, err := s.openFile(index)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open file %d", index)
	}
	h.beginRead()
	defer h.endRead()

	buf := make([]byte, n)
	read, err := h.file.ReadAt(buf, int64(pos))
	if err != nil {
		return nil, errors.Wrapf(err, "store: read file %d at %d", index, pos)
	}
	if read < n {
		return nil, &errs.CorruptionError{Reason: fmt.Sprintf("short read at file %d pos %d: got %d want %d", index, pos, read, n)}
	}
	return buf, nil
}

// ReadNode resolves a child pointer into its decoded record.
func (s *Store) ReadNode(ptr node.NodePointer) (*node.Record, error) {
	if ptr.IsNil() {
		return nil, fmt.Errorf("store: cannot read NIL pointer")
	}
	buf, err := s.readAt(ptr.Index, ptr.Pos, s.codec.Size())
	if err != nil {
		return nil, err
	}
	return s.codec.Decode(buf, ptr.Leaf)
}

// ReadValue resolves a leaf's value pointer into its raw bytes.
func (s *Store) ReadValue(ptr node.Pointer) ([]byte, error) {
	if ptr.IsZero() {
		return nil, fmt.Errorf("store: cannot read zero value pointer")
	}
	return s.readAt(ptr.Index, ptr.Pos, int(ptr.Size))
}

// BeginCommit returns a write buffer positioned at the store's current
// append cursor, ready to accumulate one commit's bytes.
func (s *Store) BeginCommit() *WriteBuffer {
	return NewWriteBuffer(s.appendIndex, s.appendPos)
}

// CommitMeta is the result of AppendMeta: the meta record's content plus
// the on-disk location the record itself occupies, to be adopted as the
// store's new state once Commit durably flushes the buffer.
type CommitMeta struct {
	Meta     Meta
	LocIndex uint16
	LocPos   uint32
}

// AppendMeta appends zero padding (so the meta record begins at an
// offset congruent to 0 mod MetaSize) followed by the meta record itself
// to wb, referencing root and the previous meta record's location, per
// spec §4.3. It must be called after root's own bytes have already been
// appended to wb.
func (s *Store) AppendMeta(wb *WriteBuffer, root node.NodePointer) *CommitMeta {
	s.rootMu.Lock()
	prevIndex, prevPos := s.lastMetaIndex, s.lastMetaPos
	s.rootMu.Unlock()

	meta := Meta{MetaIndex: prevIndex, MetaPos: prevPos, Root: root}

	_, off := wb.Position(wb.Written())
	pad := (MetaSize - int(off%MetaSize)) % MetaSize
	if pad > 0 {
		wb.Append(make([]byte, pad))
	}
	locIndex, locPos := wb.Position(wb.Written())
	wb.Append(encodeMeta(meta, s.hash))
	return &CommitMeta{Meta: meta, LocIndex: locIndex, LocPos: locPos}
}

// Commit flushes wb's accumulated chunks to disk and fsyncs every
// touched file. If info is non-nil (a standalone commit that called
// AppendMeta), Commit also publishes the new root as the store's current
// state (root cache, lastMeta, hasMeta) so later GetRoot/CurrentRoot
// calls see it.
func (s *Store) Commit(wb *WriteBuffer, rootDigest []byte, info *CommitMeta) error {
	start := time.Now()
	nodesWritten := wb.Nodes()
	chunks := wb.Flush()

	touched := make([]uint16, 0, 2)
	seen := make(map[uint16]bool)
	totalBytes := 0
	current := s.appendIndex

	for _, chunk := range chunks {
		if chunk.Index != current {
			// A chunk boundary means the write buffer rolled past
			// MaxFileSize: sync and close the file it rolled off of
			// before moving on (spec §4.3, "the current file is synced,
			// closed, a new file is created").
			if h, err := s.openFile(current); err == nil {
				_ = h.file.Sync()
			}
			_ = s.cache.closeAndForget(current)
			current = chunk.Index
		}

		h, err := s.openFile(chunk.Index)
		if err != nil {
			return errors.Wrapf(err, "store: open file %d for append", chunk.Index)
		}
		if _, err := h.file.Append(chunk.Data); err != nil {
			return errors.Wrapf(err, "store: append to file %d", chunk.Index)
		}
		totalBytes += len(chunk.Data)
		if !seen[chunk.Index] {
			seen[chunk.Index] = true
			touched = append(touched, chunk.Index)
		}
		s.appendIndex = chunk.Index
	}

	for _, idx := range touched {
		h, err := s.openFile(idx)
		if err != nil {
			return errors.Wrapf(err, "store: open file %d to sync", idx)
		}
		if err := h.file.Sync(); err != nil {
			return errors.Wrapf(err, "store: sync file %d", idx)
		}
	}

	if len(touched) > 0 {
		s.cache.setCurrent(s.appendIndex)
		if h, err := s.openFile(s.appendIndex); err == nil {
			if size, err := h.file.Size(); err == nil {
				s.appendPos = uint32(size)
			}
		}
		if s.appendIndex > s.highestIndex {
			s.highestIndex = s.appendIndex
		}
	}

	if info != nil {
		s.rootMu.Lock()
		s.state = info.Meta
		s.hasMeta = true
		s.lastMetaIndex = info.LocIndex
		s.lastMetaPos = info.LocPos
		s.rootCache.Add(string(rootDigest), info.Meta.Root)
		s.rootMu.Unlock()
	}

	s.metrics.CommitDuration(time.Since(start))
	s.metrics.NodesWritten(nodesWritten)
	s.metrics.BytesWritten(totalBytes)
	s.log.Debug().
		Int("bytes", totalBytes).
		Int("files_touched", len(touched)).
		Msg("store: commit flushed")

	return nil
}

// CurrentRoot returns the store's current root pointer (standalone
// mode), along with whether a root exists at all (false for an empty
// tree / fresh store).
func (s *Store) CurrentRoot() (node.NodePointer, bool) {
	s.rootMu.Lock()
	defer s.rootMu.Unlock()
	if !s.hasMeta {
		return node.NodePointer{}, false
	}
	return s.state.Root, true
}

// rootDigest recomputes a root pointer's digest from the single record
// it addresses, without a full subtree re-hash (spec §4.3): an internal
// root's digest is H(left.Digest || right.Digest) from its own children
// pointers; a leaf root's digest is stored directly in its record.
func (s *Store) rootDigest(ptr node.NodePointer) ([]byte, error) {
	if ptr.IsNil() {
		return s.hash.Zero(), nil
	}
	rec, err := s.ReadNode(ptr)
	if err != nil {
		return nil, err
	}
	if rec.Kind == node.KindLeaf {
		return rec.Digest, nil
	}
	return s.hash.Digest(append(append([]byte{}, rec.Left.Digest...), rec.Right.Digest...)), nil
}

// GetRoot resolves a historical root hash to its node pointer (spec
// §4.3, getRoot). A zero-length or nil digest means "current root".
func (s *Store) GetRoot(digest []byte) (node.NodePointer, error) {
	if len(digest) == 0 || isZero(digest, s.hash.Zero()) {
		s.rootMu.Lock()
		defer s.rootMu.Unlock()
		if !s.hasMeta {
			return node.NodePointer{}, nil
		}
		return s.state.Root, nil
	}

	s.rootMu.Lock()
	defer s.rootMu.Unlock()

	if v, ok := s.rootCache.Get(string(digest)); ok {
		return v.(node.NodePointer), nil
	}

	if !s.hasMeta {
		return node.NodePointer{}, &errs.MissingNodeError{Root: digest, Node: "root"}
	}

	meta := s.state
	for {
		rootDigest, err := s.rootDigest(meta.Root)
		if err != nil {
			return node.NodePointer{}, err
		}
		meta.Root.Digest = rootDigest
		s.rootCache.Add(string(rootDigest), meta.Root)
		if bytesEqual(rootDigest, digest) {
			return meta.Root, nil
		}
		if meta.MetaIndex == 0 {
			return node.NodePointer{}, &errs.MissingNodeError{Root: digest, Node: "root"}
		}
		buf, err := s.readAt(meta.MetaIndex, meta.MetaPos, MetaSize)
		if err != nil {
			return node.NodePointer{}, err
		}
		prev, err := decodeMeta(buf, s.hash)
		if err != nil {
			return node.NodePointer{}, err
		}
		meta = prev
	}
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

func isZero(digest, zero []byte) bool {
	return bytesEqual(digest, zero)
}

// Close closes every open file handle.
func (s *Store) Close() error {
	if s.closed {
		return &errs.StateError{Reason: "store already closed"}
	}
	s.closed = true
	return s.cache.closeAll()
}

// Destroy removes every file in the store and its prefix directory. The
// store must already be closed.
func (s *Store) Destroy() error {
	if !s.closed {
		return &errs.StateError{Reason: "store must be closed before destroy"}
	}
	entries, err := s.fsys.Readdir(s.prefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsFile {
			continue
		}
		if err := s.fsys.Unlink(filepath.Join(s.prefix, e.Name)); err != nil {
			return err
		}
	}
	if err := s.fsys.Rmdir(s.prefix); err != nil {
		if fs.IsNotEmpty(err) {
			return s.fsys.Rename(s.prefix, s.prefix+"."+randomSuffix())
		}
		return err
	}
	return nil
}

func randomSuffix() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "." + strconv.Itoa(os.Getpid())
}
