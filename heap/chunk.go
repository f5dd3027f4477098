package heap

import "unsafe"

// chunkEndSentinel is the distinguished value written at the last word of
// every chunk: the all-zero word, which no live object's class pointer may
// legally equal (class pointers are always non-null addresses).
const chunkEndSentinel uintptr = 0

// MinimumChunkSize is the smallest backing allocation a space will ever
// request from the Platform. Chunk sizes are always a multiple of the
// platform's page size and at least this large.
const MinimumChunkSize = 4096

// readWord and writeWord are the accessor primitives every other read/write
// in this package funnels through; nothing else reaches into raw memory
// without going through one of these (or the typed record casts in
// freelist.go / promoted.go, which are the same operation spelled as a
// struct overlay).
func readWord(addr Address) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func writeWord(addr Address, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

func hasSentinelAt(addr Address) bool {
	return readWord(addr) == chunkEndSentinel
}

// Chunk is a single contiguous, page-aligned backing allocation owned by a
// space. The last word of every chunk always holds chunkEndSentinel, which
// terminates any linear scan over the chunk's objects.
type Chunk struct {
	start Address
	end   Address // exclusive; end-WordSize holds the sentinel

	next *Chunk

	// Per-chunk GCMetadata storage, initialised when the chunk is acquired.
	// starts and remembered hold one byte per card; marks holds one bit per
	// word. All three are sized against the chunk at creation time and
	// never resized.
	starts     []byte
	remembered []byte
	marks      []byte
}

// Start returns the first usable address in the chunk.
func (c *Chunk) Start() Address { return c.start }

// End returns the address one past the chunk's last byte (the sentinel word
// occupies End()-WordSize).
func (c *Chunk) End() Address { return c.end }

// Size returns the chunk's total size in bytes, including the sentinel word.
func (c *Chunk) Size() uintptr { return c.end.Sub(c.start) }

// UsableEnd returns the last address at which an allocation window may end:
// the address of the sentinel word, which is the window's exclusive limit.
func (c *Chunk) UsableEnd() Address { return c.end.Add(0) - Address(WordSize) }

func (c *Chunk) writeSentinel() {
	writeWord(c.UsableEnd(), chunkEndSentinel)
}

// newChunk carves a Chunk out of a platform reservation of exactly size
// bytes (already page-aligned) and installs the end sentinel.
func newChunk(mem unsafe.Pointer, size uintptr) *Chunk {
	start := Address(uintptr(mem))
	c := &Chunk{start: start, end: start.Add(size)}
	c.writeSentinel()
	return c
}

// ChunkList is the ordered list of chunks owned by a space, in allocation
// order. It supports only append and forward iteration — chunks are never
// removed in this non-compacting design.
type ChunkList struct {
	head, tail *Chunk
}

// Append adds c to the end of the list.
func (l *ChunkList) Append(c *Chunk) {
	if l.tail == nil {
		l.head = c
		l.tail = c
		return
	}
	l.tail.next = c
	l.tail = c
}

// Each calls fn for every chunk, in allocation order.
func (l *ChunkList) Each(fn func(*Chunk)) {
	for c := l.head; c != nil; c = c.next {
		fn(c)
	}
}

// Includes reports whether addr falls within some chunk's [start, end) range.
func (l *ChunkList) Includes(addr Address) bool {
	for c := l.head; c != nil; c = c.next {
		if addr >= c.start && addr < c.end {
			return true
		}
	}
	return false
}

// ChunkFor returns the chunk containing addr, or nil.
func (l *ChunkList) ChunkFor(addr Address) *Chunk {
	for c := l.head; c != nil; c = c.next {
		if addr >= c.start && addr < c.end {
			return c
		}
	}
	return nil
}
