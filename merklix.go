// Package merklix implements a persistent, authenticated binary-radix
// key-value index keyed by the bits of a fixed-width hash (spec §1–§4):
// insert/remove/get against an in-memory working tree, commit to an
// append-only flat-file store, and compact inclusion/exclusion proofs
// verified against a root hash.
package merklix

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dapperlabs/merklix/errs"
	"github.com/dapperlabs/merklix/fs"
	"github.com/dapperlabs/merklix/metrics"
	"github.com/dapperlabs/merklix/node"
	"github.com/dapperlabs/merklix/proof"
	"github.com/dapperlabs/merklix/store"
	"github.com/dapperlabs/merklix/tracing"
)

// kind discriminates a working-tree node, the in-memory analog of the
// on-disk Internal/Leaf/NIL variants (spec §9: "the tagged variant
// { Nil, Hash(pointer), Internal{left,right,dirty}, Leaf{key,value,dirty} }").
type kind uint8

const (
	kindNil kind = iota
	kindInternal
	kindLeaf
)

// workNode is one node of the in-memory working tree. A node fetched
// from the store starts as an un-materialized placeholder (only its
// kind, digest and on-disk location known, from the pointer that
// addressed it) and materializes its children or key/value on first
// descent (spec §9, "lazy materialisation").
type workNode struct {
	kind         kind
	materialized bool
	dirty        bool
	digest       []byte

	index uint16 // committed record location, valid when !dirty
	pos   uint32

	left, right *workNode // internal

	key, value []byte       // leaf; value is only held in memory while dirty
	valuePtr   node.Pointer // committed value location, valid when !dirty
}

// Tree is an open, in-memory working tree over a backing store.
type Tree struct {
	store   *store.Store
	hash    Hash
	bits    int
	keySize int

	standalone bool
	root       *workNode

	log    zerolog.Logger
	tracer *tracing.Tracer

	closed bool
}

// Options bundles the dependencies Open needs beyond Config.
type Options struct {
	FS           fs.FileSystem
	Metrics      metrics.Collector
	Log          zerolog.Logger
	Tracer       *tracing.Tracer
	EvictionSeed int64
}

// Open opens (or creates) a tree backed by a store at cfg.Prefix.
func Open(cfg Config, opts Options) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.FS == nil {
		return nil, fmt.Errorf("merklix: options: filesystem is required")
	}

	s, err := store.Open(store.Options{
		FS:           opts.FS,
		Prefix:       cfg.Prefix,
		Hash:         cfg.Hash,
		KeySize:      cfg.KeySize(),
		Standalone:   cfg.Standalone,
		Metrics:      opts.Metrics,
		Log:          opts.Log,
		Tracer:       opts.Tracer,
		EvictionSeed: opts.EvictionSeed,
	})
	if err != nil {
		return nil, err
	}

	t := &Tree{
		store:      s,
		hash:       cfg.Hash,
		bits:       cfg.Bits,
		keySize:    cfg.KeySize(),
		standalone: cfg.Standalone,
		log:        opts.Log,
		tracer:     opts.Tracer,
		root:       &workNode{kind: kindNil},
	}

	if cfg.Standalone {
		if ptr, ok := s.CurrentRoot(); ok {
			t.root = t.wrapChild(ptr)
		}
	}

	return t, nil
}

// OpenAt opens a read path rooted at a specific historical root hash
// rather than the store's current tip (spec §4.1 prove(root_hash, key)).
// The returned Tree supports Get/Prove/Values but not Insert/Remove/
// Commit.
func (t *Tree) OpenAt(rootHash []byte) (*Tree, error) {
	ptr, err := t.store.GetRoot(rootHash)
	if err != nil {
		return nil, err
	}
	root := &workNode{kind: kindNil}
	if !ptr.IsNil() {
		root = t.wrapChild(node.NodePointer{Leaf: ptr.Leaf, Index: ptr.Index, Pos: ptr.Pos, Digest: rootHash})
	}
	return &Tree{
		store:      t.store,
		hash:       t.hash,
		bits:       t.bits,
		keySize:    t.keySize,
		standalone: t.standalone,
		log:        t.log,
		tracer:     t.tracer,
		root:       root,
	}, nil
}

func (t *Tree) wrapChild(p node.NodePointer) *workNode {
	if p.IsNil() {
		return &workNode{kind: kindNil}
	}
	k := kindInternal
	if p.Leaf {
		k = kindLeaf
	}
	return &workNode{kind: k, index: p.Index, pos: p.Pos, digest: p.Digest}
}

func (t *Tree) materialize(n *workNode) error {
	if n.materialized || n.kind == kindNil {
		return nil
	}
	ptr := node.NodePointer{Leaf: n.kind == kindLeaf, Index: n.index, Pos: n.pos}
	rec, err := t.store.ReadNode(ptr)
	if err != nil {
		return err
	}
	if n.kind == kindLeaf {
		n.key = rec.Key
		n.valuePtr = rec.Value
		n.digest = rec.Digest
	} else {
		n.left = t.wrapChild(rec.Left)
		n.right = t.wrapChild(rec.Right)
	}
	n.materialized = true
	return nil
}

func (t *Tree) digestOf(n *workNode) ([]byte, error) {
	if n.kind == kindNil {
		return t.hash.Zero(), nil
	}
	if n.digest != nil {
		return n.digest, nil
	}
	if err := t.materialize(n); err != nil {
		return nil, err
	}
	if n.digest != nil {
		// A committed leaf's digest comes from its record.
		return n.digest, nil
	}
	switch n.kind {
	case kindInternal:
		ld, err := t.digestOf(n.left)
		if err != nil {
			return nil, err
		}
		rd, err := t.digestOf(n.right)
		if err != nil {
			return nil, err
		}
		d := t.hash.Digest(append(append([]byte{}, ld...), rd...))
		n.digest = d
		return d, nil
	case kindLeaf:
		d := t.hash.Digest(append(append([]byte{}, n.key...), n.value...))
		n.digest = d
		return d, nil
	}
	return nil, &errs.CorruptionError{Reason: "unknown node kind"}
}

func (t *Tree) leafValue(n *workNode) ([]byte, error) {
	if n.dirty {
		return n.value, nil
	}
	return t.store.ReadValue(n.valuePtr)
}

func bitAt(key []byte, depth int) byte {
	return (key[depth/8] >> uint(7-depth%8)) & 1
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

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (t *Tree) checkKey(key []byte) error {
	if len(key) != t.keySize {
		return fmt.Errorf("merklix: key must be %d bytes, got %d", t.keySize, len(key))
	}
	return nil
}

// Get looks up key in the working tree (spec §4.1 get).
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	if err := t.checkKey(key); err != nil {
		return nil, false, err
	}
	n := t.root
	for depth := 0; ; depth++ {
		switch n.kind {
		case kindNil:
			return nil, false, nil
		case kindLeaf:
			if err := t.materialize(n); err != nil {
				return nil, false, err
			}
			if !bytesEqual(n.key, key) {
				return nil, false, nil
			}
			v, err := t.leafValue(n)
			if err != nil {
				return nil, false, err
			}
			return v, true, nil
		case kindInternal:
			if depth >= t.bits {
				return nil, false, &errs.CorruptionError{Reason: "descent exceeded key width"}
			}
			if err := t.materialize(n); err != nil {
				return nil, false, err
			}
			if bitAt(key, depth) == 0 {
				n = n.left
			} else {
				n = n.right
			}
		}
	}
}

// Insert adds or replaces key's value (spec §4.1 insert).
func (t *Tree) Insert(key, value []byte) error {
	if err := t.checkKey(key); err != nil {
		return err
	}
	v := clone(value)
	root, err := t.insertAt(t.root, key, v, 0)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *Tree) insertAt(n *workNode, key, value []byte, depth int) (*workNode, error) {
	switch n.kind {
	case kindNil:
		return &workNode{kind: kindLeaf, materialized: true, dirty: true, key: clone(key), value: value}, nil
	case kindLeaf:
		if err := t.materialize(n); err != nil {
			return nil, err
		}
		if bytesEqual(n.key, key) {
			return &workNode{kind: kindLeaf, materialized: true, dirty: true, key: clone(key), value: value}, nil
		}
		return t.growDown(n, key, value, depth)
	case kindInternal:
		if depth >= t.bits {
			return nil, &errs.CorruptionError{Reason: "descent exceeded key width"}
		}
		if err := t.materialize(n); err != nil {
			return nil, err
		}
		if bitAt(key, depth) == 0 {
			newChild, err := t.insertAt(n.left, key, value, depth+1)
			if err != nil {
				return nil, err
			}
			n.left = newChild
		} else {
			newChild, err := t.insertAt(n.right, key, value, depth+1)
			if err != nil {
				return nil, err
			}
			n.right = newChild
		}
		n.digest = nil
		n.dirty = true
		return n, nil
	}
	return nil, &errs.CorruptionError{Reason: "unknown node kind"}
}

// growDown builds the internal-node chain needed to disambiguate
// existing's key from the new key (spec §4.1, insert step 4): a run of
// dead-end-paired internals along their shared bit prefix, terminating
// in one internal holding both leaves at the first differing bit.
func (t *Tree) growDown(existing *workNode, key, value []byte, depth int) (*workNode, error) {
	existingKey := existing.key
	d := depth
	for d < t.bits && bitAt(existingKey, d) == bitAt(key, d) {
		d++
	}
	if d >= t.bits {
		return nil, &errs.CorruptionError{Reason: "colliding keys identical through max depth"}
	}

	newLeaf := &workNode{kind: kindLeaf, materialized: true, dirty: true, key: clone(key), value: value}

	var split *workNode
	if bitAt(key, d) == 0 {
		split = &workNode{kind: kindInternal, materialized: true, dirty: true, left: newLeaf, right: existing}
	} else {
		split = &workNode{kind: kindInternal, materialized: true, dirty: true, left: existing, right: newLeaf}
	}

	n := split
	for i := d - 1; i >= depth; i-- {
		dead := &workNode{kind: kindNil}
		parent := &workNode{kind: kindInternal, materialized: true, dirty: true}
		if bitAt(existingKey, i) == 0 {
			parent.left, parent.right = n, dead
		} else {
			parent.left, parent.right = dead, n
		}
		n = parent
	}
	return n, nil
}

// Remove deletes key if present (spec §4.1 remove), ungrowing the spine.
func (t *Tree) Remove(key []byte) error {
	if err := t.checkKey(key); err != nil {
		return err
	}
	root, _, err := t.removeAt(t.root, key, 0)
	if err != nil {
		return err
	}
	t.root = root
	return nil
}

func (t *Tree) removeAt(n *workNode, key []byte, depth int) (*workNode, bool, error) {
	switch n.kind {
	case kindNil:
		return n, false, nil
	case kindLeaf:
		if err := t.materialize(n); err != nil {
			return nil, false, err
		}
		if !bytesEqual(n.key, key) {
			return n, false, nil
		}
		return &workNode{kind: kindNil}, true, nil
	case kindInternal:
		if depth >= t.bits {
			return nil, false, &errs.CorruptionError{Reason: "descent exceeded key width"}
		}
		if err := t.materialize(n); err != nil {
			return nil, false, err
		}
		bit := bitAt(key, depth)
		var child *workNode
		if bit == 0 {
			child = n.left
		} else {
			child = n.right
		}
		newChild, removed, err := t.removeAt(child, key, depth+1)
		if err != nil || !removed {
			return n, removed, err
		}
		if bit == 0 {
			n.left = newChild
		} else {
			n.right = newChild
		}
		// Ungrow: a (leaf, NIL) pair in either order collapses to the
		// leaf; an internal sibling stays, born a dead end.
		if n.left.kind == kindLeaf && n.right.kind == kindNil {
			return n.left, true, nil
		}
		if n.right.kind == kindLeaf && n.left.kind == kindNil {
			return n.right, true, nil
		}
		n.digest = nil
		n.dirty = true
		return n, true, nil
	}
	return n, false, nil
}

// RootHash returns the working tree's current root digest, recomputing
// any stale digests along the dirty spine.
func (t *Tree) RootHash() ([]byte, error) {
	return t.digestOf(t.root)
}

// Commit writes every dirty node reachable from the root to the backing
// store (spec §4.1 commit), in post-order so children precede parents,
// then — in standalone mode — appends and publishes a meta record.
func (t *Tree) Commit() ([]byte, error) {
	span := t.tracer.StartCommit("")
	defer span.Finish()

	wb := t.store.BeginCommit()
	ptr, err := t.writeNode(wb, t.root)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	rootDigest, err := t.digestOf(t.root)
	if err != nil {
		return nil, err
	}

	var info *store.CommitMeta
	if t.standalone {
		info = t.store.AppendMeta(wb, ptr)
	}
	if err := t.store.Commit(wb, rootDigest, info); err != nil {
		span.SetError(err)
		return nil, err
	}

	t.root = t.wrapChild(ptr)
	t.root.digest = rootDigest
	return rootDigest, nil
}

// writeNode serializes n (if dirty) to wb in post-order, returning the
// NodePointer a parent embeds for it. Already-committed subtrees are
// returned unchanged without touching the write buffer.
func (t *Tree) writeNode(wb *store.WriteBuffer, n *workNode) (node.NodePointer, error) {
	if n.kind == kindNil {
		return node.NodePointer{}, nil
	}
	if !n.dirty {
		d, err := t.digestOf(n)
		if err != nil {
			return node.NodePointer{}, err
		}
		return node.NodePointer{Digest: d, Leaf: n.kind == kindLeaf, Index: n.index, Pos: n.pos}, nil
	}

	switch n.kind {
	case kindLeaf:
		digest, err := t.digestOf(n)
		if err != nil {
			return node.NodePointer{}, err
		}
		valuePtr := t.store.WriteValue(wb, n.value)
		ptr := t.store.WriteLeaf(wb, digest, n.key, valuePtr)
		n.index, n.pos = ptr.Index, ptr.Pos
		n.valuePtr = valuePtr
		n.dirty = false
		return ptr, nil
	case kindInternal:
		leftPtr, err := t.writeNode(wb, n.left)
		if err != nil {
			return node.NodePointer{}, err
		}
		rightPtr, err := t.writeNode(wb, n.right)
		if err != nil {
			return node.NodePointer{}, err
		}
		digest, err := t.digestOf(n)
		if err != nil {
			return node.NodePointer{}, err
		}
		ptr := t.store.WriteInternal(wb, leftPtr, rightPtr, digest)
		n.index, n.pos = ptr.Index, ptr.Pos
		n.dirty = false
		return ptr, nil
	}
	return node.NodePointer{}, &errs.CorruptionError{Reason: "unknown node kind"}
}

// Prove produces a compact inclusion/exclusion proof for key against
// rootHash (spec §4.1 prove / §4.4).
func (t *Tree) Prove(rootHash, key []byte) ([]byte, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}
	span := t.tracer.StartProve("")
	defer span.Finish()

	target := t
	if len(rootHash) > 0 && !bytesEqual(rootHash, t.hash.Zero()) {
		at, err := t.OpenAt(rootHash)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		target = at
	}

	b := proof.NewBuilder(t.hash)
	n := target.root
	for depth := 0; ; depth++ {
		switch n.kind {
		case kindNil:
			p := b.Finish(proof.Deadend, nil, nil)
			return proof.Encode(p, t.hash.Size()), nil
		case kindLeaf:
			if err := target.materialize(n); err != nil {
				return nil, err
			}
			if bytesEqual(n.key, key) {
				v, err := target.leafValue(n)
				if err != nil {
					return nil, err
				}
				p := b.Finish(proof.Exists, key, v)
				return proof.Encode(p, t.hash.Size()), nil
			}
			v, err := target.leafValue(n)
			if err != nil {
				return nil, err
			}
			p := b.Finish(proof.Collision, n.key, v)
			return proof.Encode(p, t.hash.Size()), nil
		case kindInternal:
			if err := target.materialize(n); err != nil {
				return nil, err
			}
			var sibling *workNode
			if bitAt(key, depth) == 0 {
				sibling, n = n.right, n.left
			} else {
				sibling, n = n.left, n.right
			}
			sd, err := target.digestOf(sibling)
			if err != nil {
				return nil, err
			}
			b.Visit(sd)
		}
	}
}

// Verify is the stateless proof verifier (spec §4.1 verify / §4.4).
func (t *Tree) Verify(rootHash, key, proofBytes []byte) (proof.Code, []byte) {
	return proof.Verify(t.hash, t.bits, t.keySize, rootHash, key, proofBytes)
}

// Values performs an in-order traversal of the working tree reachable
// from the current root, resolving hash-only nodes lazily exactly like
// Get (spec §6.4). Inserts and removes made since the last Commit are
// included; the traversal does not restrict itself to committed state.
func (t *Tree) Values(visit func(key, value []byte) error) error {
	return t.walk(t.root, visit)
}

func (t *Tree) walk(n *workNode, visit func(key, value []byte) error) error {
	switch n.kind {
	case kindNil:
		return nil
	case kindLeaf:
		if err := t.materialize(n); err != nil {
			return err
		}
		v, err := t.leafValue(n)
		if err != nil {
			return err
		}
		return visit(n.key, v)
	case kindInternal:
		if err := t.materialize(n); err != nil {
			return err
		}
		if err := t.walk(n.left, visit); err != nil {
			return err
		}
		return t.walk(n.right, visit)
	}
	return nil
}

// Close releases the backing store's resources.
func (t *Tree) Close() error {
	if t.closed {
		return &errs.StateError{Reason: "tree already closed"}
	}
	t.closed = true
	return t.store.Close()
}

// Destroy removes the backing store's files. The tree must be closed.
func (t *Tree) Destroy() error {
	if !t.closed {
		return &errs.StateError{Reason: "tree must be closed before destroy"}
	}
	return t.store.Destroy()
}
