package heap

// kNoObjectStart is the sentinel value for a card with no recorded object
// start.
const kNoObjectStart byte = 0xff

// kNoNewSpacePointers is the "clean" remembered-set byte value.
const kNoNewSpacePointers byte = 0

// DefaultCardSize is a power of two comfortably
// smaller than a default chunk, so that a dirty card rarely spans more than
// a handful of objects.
const DefaultCardSize = 256

// GCMetadata is the heap's side-table service: for any heap address it
// can report the mark bit, the object-start byte, and the remembered-set
// card byte. Storage is per-chunk; this
// type carries only the shared card-size configuration and the chunk list
// needed to resolve an arbitrary address to its owning chunk's tables.
type GCMetadata struct {
	cardSize uintptr
	chunks   *ChunkList
}

// NewGCMetadata returns a GCMetadata table keyed to chunks, using cardSize
// (which must be a power of two) for every chunk it initialises.
func NewGCMetadata(cardSize uintptr, chunks *ChunkList) *GCMetadata {
	if cardSize == 0 || cardSize&(cardSize-1) != 0 {
		panic("heap: card size must be a power of two")
	}
	return &GCMetadata{cardSize: cardSize, chunks: chunks}
}

// CardSize returns the configured card size in bytes.
func (g *GCMetadata) CardSize() uintptr { return g.cardSize }

// cardIndex returns the index of addr's card within its chunk.
func (g *GCMetadata) cardIndex(chunk *Chunk, addr Address) uintptr {
	return addr.Sub(chunk.start) / g.cardSize
}

// InitializeForChunk allocates the starts/remembered/mark arrays for a
// freshly acquired chunk, with every start byte set to kNoObjectStart and the
// remembered and mark arrays zeroed, in one place since all three tables share
// the same per-chunk sizing arithmetic.
func (g *GCMetadata) InitializeForChunk(chunk *Chunk) {
	size := chunk.Size()
	numCards := (size + g.cardSize - 1) / g.cardSize

	chunk.starts = make([]byte, numCards)
	for i := range chunk.starts {
		chunk.starts[i] = kNoObjectStart
	}

	chunk.remembered = make([]byte, numCards)

	numWords := (size + WordSize - 1) / WordSize
	chunk.marks = make([]byte, (numWords+7)/8)
}

// resolve finds the chunk owning addr, or nil.
func (g *GCMetadata) resolve(addr Address) *Chunk {
	return g.chunks.ChunkFor(addr)
}

// RecordStart records that an object begins at addr, storing the lowest
// object header seen so far in that card: the slot is written only when it
// is empty or addr is below the recorded start. chunk must be addr's
// owning chunk; callers on the allocation fast path already know it.
func (g *GCMetadata) RecordStart(chunk *Chunk, addr Address) {
	idx := g.cardIndex(chunk, addr)
	offset := byte(uintptr(addr) & (g.cardSize - 1))
	cur := chunk.starts[idx]
	if cur == kNoObjectStart || offset < cur {
		chunk.starts[idx] = offset
	}
}

// ClearStarts resets every start byte in chunk to kNoObjectStart; used at
// the beginning of a sweep pass.
func (g *GCMetadata) ClearStarts(chunk *Chunk) {
	for i := range chunk.starts {
		chunk.starts[i] = kNoObjectStart
	}
}

// StartsFor returns the card's recorded start byte and whether any start is
// recorded at all.
func (g *GCMetadata) StartsFor(chunk *Chunk, addr Address) (offset byte, ok bool) {
	idx := g.cardIndex(chunk, addr)
	b := chunk.starts[idx]
	return b, b != kNoObjectStart
}

// ObjectAddressFromStart reconstructs the object address given a
// card-aligned base address and a start byte previously read from that
// card's slot.
func ObjectAddressFromStart(cardBase Address, start byte) Address {
	return Address(uintptr(cardBase) + uintptr(start))
}

// --- Remembered set -------------------------------------------------------

// RememberedByte returns a pointer to the remembered-set byte for addr's
// card, so a caller (the scavenge visitor sink) can both read and later
// write it without re-resolving the chunk/card index.
func (g *GCMetadata) RememberedByte(chunk *Chunk, addr Address) *byte {
	idx := g.cardIndex(chunk, addr)
	return &chunk.remembered[idx]
}

// IsRemembered reports whether addr's card is marked dirty.
func (g *GCMetadata) IsRemembered(chunk *Chunk, addr Address) bool {
	idx := g.cardIndex(chunk, addr)
	return chunk.remembered[idx] != kNoNewSpacePointers
}

// SetRemembered marks addr's card dirty. Called by the write barrier,
// external to this package, whenever a young-space pointer is stored into
// an old-space slot.
func (g *GCMetadata) SetRemembered(chunk *Chunk, addr Address) {
	idx := g.cardIndex(chunk, addr)
	chunk.remembered[idx] = 1
}

// --- Mark bits -------------------------------------------------------------

func (g *GCMetadata) wordIndex(chunk *Chunk, addr Address) uintptr {
	return addr.Sub(chunk.start) / WordSize
}

// MarkAll sets every mark bit covering [obj, obj+size).
func (g *GCMetadata) MarkAll(chunk *Chunk, obj Address, size uintptr) {
	start := g.wordIndex(chunk, obj)
	words := size / WordSize
	for i := uintptr(0); i < words; i++ {
		w := start + i
		chunk.marks[w/8] |= 1 << (w % 8)
	}
}

// IsMarked tests the mark bit of obj's first word.
func (g *GCMetadata) IsMarked(chunk *Chunk, obj Address) bool {
	w := g.wordIndex(chunk, obj)
	return chunk.marks[w/8]&(1<<(w%8)) != 0
}

// IsMarkedAddr is IsMarked but resolves obj's chunk itself; used where the
// caller (mark-stack overflow recovery, NewLocation/IsAlive, weak-pointer
// processing) does not
// already have the chunk in hand.
func (g *GCMetadata) IsMarkedAddr(obj Address) bool {
	chunk := g.resolve(obj)
	if chunk == nil {
		return false
	}
	return g.IsMarked(chunk, obj)
}

// ClearMarks clears every mark bit in chunk; run after a sweep completes so
// the next mark phase starts from a clean slate.
func (g *GCMetadata) ClearMarks(chunk *Chunk) {
	for i := range chunk.marks {
		chunk.marks[i] = 0
	}
}
