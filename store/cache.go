package store

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/dapperlabs/merklix/fs"
	"github.com/dapperlabs/merklix/metrics"
)

// MaxOpenFiles bounds the number of concurrently open file handles
// (spec §4.3).
const MaxOpenFiles = 32

// fileHandle wraps one open fs.File with the outstanding-reads counter
// that keeps eviction from closing a file a read is still in flight
// against (spec §5, "Shared resources").
type fileHandle struct {
	index uint16
	file  fs.File
	reads int32 // atomic
}

func (h *fileHandle) beginRead()  { atomic.AddInt32(&h.reads, 1) }
func (h *fileHandle) endRead()    { atomic.AddInt32(&h.reads, -1) }
func (h *fileHandle) inFlight() bool { return atomic.LoadInt32(&h.reads) != 0 }

// fileCache is the store's bounded open-file cache: up to MaxOpenFiles
// handles, evicting a random non-busy, non-current victim when a new
// open would exceed the bound.
type fileCache struct {
	mu       sync.Mutex
	files    map[uint16]*fileHandle
	openLock map[uint16]*sync.Mutex // per-index guard against racing opens
	current  uint16                 // the append target; never evicted
	rng      *rand.Rand
	metrics  metrics.Collector
}

// newFileCache builds an empty cache. seed makes eviction order
// reproducible across runs of the same test, per spec §9
// ("a deterministic seed is acceptable").
func newFileCache(seed int64, m metrics.Collector) *fileCache {
	return &fileCache{
		files:    make(map[uint16]*fileHandle),
		openLock: make(map[uint16]*sync.Mutex),
		rng:      rand.New(rand.NewSource(seed)),
		metrics:  m,
	}
}

func (c *fileCache) lockFor(index uint16) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.openLock[index]
	if !ok {
		l = &sync.Mutex{}
		c.openLock[index] = l
	}
	return l
}

// setCurrent marks index as the live append target, exempting it from
// eviction.
func (c *fileCache) setCurrent(index uint16) {
	c.mu.Lock()
	c.current = index
	c.mu.Unlock()
}

// open returns the handle for index, opening it via openFn (which must
// itself be idempotent-safe) if not already cached, evicting a victim
// first if the cache is at capacity.
func (c *fileCache) open(index uint16, openFn func(uint16) (fs.File, error)) (*fileHandle, error) {
	guard := c.lockFor(index)
	guard.Lock()
	defer guard.Unlock()

	c.mu.Lock()
	if h, ok := c.files[index]; ok {
		c.mu.Unlock()
		return h, nil
	}
	needEvict := len(c.files) >= MaxOpenFiles
	c.mu.Unlock()

	if needEvict {
		c.evict()
	}

	f, err := openFn(index)
	if err != nil {
		return nil, err
	}
	h := &fileHandle{index: index, file: f}

	c.mu.Lock()
	c.files[index] = h
	n := len(c.files)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.OpenFiles(n)
	}
	return h, nil
}

// evict closes one random open file that is neither the current append
// target nor has a read in flight. If no such file exists, the cache is
// left to exceed MaxOpenFiles rather than evict a busy handle.
//
// Candidates are captured as *fileHandle values in a single pass so the
// random pick is closed by identity, not re-looked-up by index
// afterwards — an index re-lookup could race with a concurrent
// open/evict of that same slot between the pick and the close.
func (c *fileCache) evict() {
	c.mu.Lock()
	candidates := make([]*fileHandle, 0, len(c.files))
	for index, h := range c.files {
		if index == c.current {
			continue
		}
		if h.inFlight() {
			continue
		}
		candidates = append(candidates, h)
	}
	if len(candidates) == 0 {
		c.mu.Unlock()
		return
	}
	victim := candidates[c.rng.Intn(len(candidates))]
	delete(c.files, victim.index)
	c.mu.Unlock()

	_ = victim.file.Close()
	if c.metrics != nil {
		c.metrics.FileEvicted()
	}
}

// closeAndForget explicitly closes and drops the handle for index, used
// when a commit plans a file roll (spec §4.2: "the current file is
// synced, closed, a new file is created"), as distinct from the
// randomized eviction above.
func (c *fileCache) closeAndForget(index uint16) error {
	c.mu.Lock()
	h, ok := c.files[index]
	if ok {
		delete(c.files, index)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return h.file.Close()
}

// closeAll closes every open file, aggregating any errors.
func (c *fileCache) closeAll() error {
	c.mu.Lock()
	handles := make([]*fileHandle, 0, len(c.files))
	for _, h := range c.files {
		handles = append(handles, h)
	}
	c.files = make(map[uint16]*fileHandle)
	c.mu.Unlock()

	var result *multierror.Error
	for _, h := range handles {
		if err := h.file.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
