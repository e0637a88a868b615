package store

// MaxFileSize is the per-file cap described in spec §4.2: a file never
// grows past this size; crossing it rolls the write buffer onto a new
// logical file index.
const MaxFileSize = 0x7ffff000

// boundary records where one logical file began within the buffer's
// cumulative write-cursor space, so Position can translate an earlier
// cursor back into a (index, offset) pair after further writes and
// rolls have happened.
type boundary struct {
	writtenAt int64  // cursor value that maps to offset 0 of this file (negative when the buffer starts mid-file)
	index     uint16 // logical file index
}

// Chunk is one completed, file-bound slice of a flushed WriteBuffer.
type Chunk struct {
	Index uint16
	Data  []byte
}

// WriteBuffer accumulates one commit's bytes in memory, tracking the
// logical (file index, offset) the bytes will occupy once flushed, and
// rolling onto the next logical file index when MaxFileSize would be
// exceeded (spec §4.2).
type WriteBuffer struct {
	data    []byte
	start   int   // offset within data where the unflushed region begins
	written int64 // cumulative bytes ever appended (monotonic cursor space)

	index  uint16 // logical file index the unflushed region belongs to
	offset uint32 // logical offset within index where the unflushed region begins

	boundaries []boundary
	chunks     []Chunk

	nodes int // count of WriteLeaf/WriteInternal records appended so far
}

// NewWriteBuffer starts a buffer whose first byte will land at
// (index, offset) once flushed — the current append position of the
// store at the time the commit begins.
func NewWriteBuffer(index uint16, offset uint32) *WriteBuffer {
	return &WriteBuffer{
		index:      index,
		offset:     offset,
		boundaries: []boundary{{writtenAt: -int64(offset), index: index}},
	}
}

func (w *WriteBuffer) expand(n int) {
	need := len(w.data) + n
	if cap(w.data) >= need {
		return
	}
	newCap := cap(w.data) * 2
	if newCap < need {
		newCap = need
	}
	if newCap < 4096 {
		newCap = 4096
	}
	nd := make([]byte, len(w.data), newCap)
	copy(nd, w.data)
	w.data = nd
}

// roll packages the still-unflushed region as a chunk bound for the
// current index, then advances to a fresh logical file.
func (w *WriteBuffer) roll() {
	w.chunks = append(w.chunks, Chunk{
		Index: w.index,
		Data:  w.data[w.start:len(w.data):len(w.data)],
	})
	w.start = len(w.data)
	w.offset = 0
	w.index++
	w.boundaries = append(w.boundaries, boundary{writtenAt: w.written, index: w.index})
}

// Append writes p to the buffer, rolling onto a new logical file first
// if p would push the current file past MaxFileSize. It returns the
// (file index, offset) pair p's first byte will occupy once flushed —
// the pointer a node can embed immediately, before any bytes reach disk.
func (w *WriteBuffer) Append(p []byte) (index uint16, offset uint32) {
	if uint64(w.offset)+uint64(len(p)) > MaxFileSize {
		w.roll()
	}
	index, offset = w.index, w.offset

	w.expand(len(p))
	w.data = append(w.data, p...)
	w.written += int64(len(p))
	w.offset += uint32(len(p))

	return index, offset
}

// Written returns the buffer's current cumulative write cursor, a value
// Position can later translate back into a (index, offset) pair.
func (w *WriteBuffer) Written() int64 { return w.written }

// Nodes returns how many node records (leaf or internal) have been
// appended to w so far this commit.
func (w *WriteBuffer) Nodes() int { return w.nodes }

// Position maps a cursor previously returned by Written (captured at
// some earlier point during this buffer's life) to the logical
// (file index, offset) it corresponds to.
func (w *WriteBuffer) Position(cursor int64) (index uint16, offset uint32) {
	b := w.boundaries[0]
	for _, next := range w.boundaries[1:] {
		if next.writtenAt > cursor {
			break
		}
		b = next
	}
	return b.index, uint32(cursor - b.writtenAt)
}

// Flush returns the list of chunks accumulated so far, one per
// destination file, and resets the buffer to start accumulating the
// next commit from its current logical position.
func (w *WriteBuffer) Flush() []Chunk {
	if w.start < len(w.data) {
		w.chunks = append(w.chunks, Chunk{
			Index: w.index,
			Data:  w.data[w.start:len(w.data):len(w.data)],
		})
	}
	chunks := w.chunks

	w.data = nil
	w.start = 0
	w.chunks = nil
	w.boundaries = []boundary{{writtenAt: w.written - int64(w.offset), index: w.index}}
	w.nodes = 0

	return chunks
}
