package heap

import "errors"

// ErrOutOfMemory is returned when the backing Platform has no more virtual
// memory to hand out and the allocation cannot be satisfied even after the
// caller is expected to have tried a collection.
var ErrOutOfMemory = errors.New("heap: out of memory")

// OldSpace is the old-generation mark-sweep heap: a bump allocator over a
// growable set of chunks, backed by a worst-fit free list, that doubles as
// the tenuring destination for a younger generation's scavenger and as the
// subject of its own full mark-sweep collection.
//
// OldSpace is not safe for concurrent use: every mutator allocation and
// every collection phase must run on one logical thread of control.
type OldSpace struct {
	platform Platform
	objects  ObjectHeap
	young    YoungSpace
	classes  Classes
	config   Config

	chunks ChunkList
	meta   *GCMetadata
	free   *FreeList

	currentChunk *Chunk
	top, limit   Address

	used             uintptr
	allocationBudget int64

	trackingAllocations bool
	promotedTrack       PromotedTrack

	noFailureDepth int

	weakRefs []*WeakRef

	allocationCount uint64
	totalAllocated  uint64
}

// HeapStats is a point-in-time snapshot of old space's bookkeeping, the
// ReadMemStats-equivalent for this space: enough to drive a dump or a
// collection-pacing heuristic without exposing any internal pointer.
type HeapStats struct {
	Used             uintptr
	Free             uintptr
	ChunkCount       int
	AllocationBudget int64
	AllocationCount  uint64
	TotalAllocated   uint64
}

// Stats returns a snapshot of the space's current accounting.
func (s *OldSpace) Stats() HeapStats {
	chunkCount := 0
	s.chunks.Each(func(*Chunk) { chunkCount++ })
	return HeapStats{
		Used:             s.used,
		Free:             s.free.TotalBytes(),
		ChunkCount:       chunkCount,
		AllocationBudget: s.allocationBudget,
		AllocationCount:  s.allocationCount,
		TotalAllocated:   s.totalAllocated,
	}
}

// NewOldSpace constructs an empty old space. objects and young are the
// embedder-owned collaborators; classes carries the class pointers the
// space must write into headers it owns (PromotedTrack, one-word filler and
// free span).
func NewOldSpace(cfg Config, platform Platform, objects ObjectHeap, young YoungSpace, classes Classes) *OldSpace {
	cfg.setDefaults()
	s := &OldSpace{
		platform:         platform,
		objects:          objects,
		young:            young,
		classes:          classes,
		config:           cfg,
		allocationBudget: cfg.InitialBudget,
	}
	s.meta = NewGCMetadata(cfg.CardSize, &s.chunks)
	s.free = NewFreeList(classes)
	return s
}

// Includes reports whether addr falls within one of this space's chunks.
func (s *OldSpace) Includes(addr Address) bool {
	return s.chunks.Includes(addr)
}

// Used returns the number of bytes currently accounted as live or
// reserved-to-be-used.
func (s *OldSpace) Used() uintptr { return s.used }

// AllocationBudget returns the current signed allocation budget.
func (s *OldSpace) AllocationBudget() int64 { return s.allocationBudget }

// SetAllocationBudget sets the allocation budget, e.g. to reset it after a
// GC cycle recovers memory.
func (s *OldSpace) SetAllocationBudget(b int64) { s.allocationBudget = b }

// Metadata exposes the space's GCMetadata table, e.g. for a debug verifier
// or a scavenger that needs raw card access.
func (s *OldSpace) Metadata() *GCMetadata { return s.meta }

// Chunks exposes the space's chunk list for iteration by collaborators
// (sweep, verify, scavenge).
func (s *OldSpace) Chunks() *ChunkList { return &s.chunks }

// FreeList exposes the space's free list.
func (s *OldSpace) FreeList() *FreeList { return s.free }

// NewLocation returns the (unchanged — this is a non-moving space) location
// of a live object, asserting it is in fact marked.
func (s *OldSpace) NewLocation(obj Address) Address {
	if !s.Includes(obj) {
		panic("heap: NewLocation on address outside old space")
	}
	if !s.meta.IsMarkedAddr(obj) {
		panic("heap: NewLocation on unmarked object")
	}
	return obj
}

// IsAlive reports whether obj is marked.
func (s *OldSpace) IsAlive(obj Address) bool {
	if !s.Includes(obj) {
		panic("heap: IsAlive on address outside old space")
	}
	return s.meta.IsMarkedAddr(obj)
}

// NoAllocationFailureScope is a paired enter/exit guard that
// forces Allocate to keep trying the free list and new-chunk paths instead
// of short-circuiting on budget exhaustion. Always release it with a defer
// on every return path.
type NoAllocationFailureScope struct {
	space *OldSpace
}

// EnterNoAllocationFailureScope enters the scope. Exit must be called
// exactly once, typically via defer.
func (s *OldSpace) EnterNoAllocationFailureScope() *NoAllocationFailureScope {
	s.noFailureDepth++
	return &NoAllocationFailureScope{space: s}
}

// Exit leaves the scope entered by EnterNoAllocationFailureScope.
func (sc *NoAllocationFailureScope) Exit() {
	sc.space.noFailureDepth--
}

func (s *OldSpace) inNoAllocationFailureScope() bool {
	return s.noFailureDepth > 0
}

// Allocate tries to bump-allocate size bytes, falling back to the free list
// and then to a freshly reserved chunk. size must be word-aligned and at
// least the object header size. It returns 0 (no error) to ask the caller
// to run a collection and retry, or 0 with ErrOutOfMemory if the backing
// platform truly has nothing left to give.
func (s *OldSpace) Allocate(size uintptr) (Address, error) {
	if !aligned(size) || size < s.config.HeaderSize {
		panic("heap: Allocate size must be word-aligned and >= header size")
	}

	// Fast path: bump allocation within the currently open window.
	if s.top != 0 && s.limit.Sub(s.top) >= size {
		result := s.top
		s.top = s.top.Add(size)
		s.allocationBudget -= int64(size)
		s.meta.RecordStart(s.currentChunk, result)
		s.allocationCount++
		s.totalAllocated += uint64(size)
		return result, nil
	}

	if !s.inNoAllocationFailureScope() && s.allocationBudget <= 0 {
		return 0, nil
	}

	addr, err := s.allocateFromFreeList(size)
	if addr == 0 && err == nil {
		addr, err = s.allocateInNewChunk(size)
	}
	if addr == 0 {
		// Trigger GC as soon as possible on the next call, regardless of
		// which path ultimately failed.
		s.allocationBudget = 0
	}
	return addr, err
}

// Flush closes the currently open allocation window, returning its unused
// tail to the free list and (if tracking) shrinking the open PromotedTrack
// down to what was actually used. A no-op if no window is open — including
// when tracking is on and Flush is called before any allocation.
func (s *OldSpace) Flush() {
	if s.top == 0 {
		return
	}
	freeSize := s.limit.Sub(s.top)
	s.free.Add(s.top, freeSize)
	if s.trackingAllocations && s.promotedTrack != 0 {
		s.promotedTrack.setEnd(s.top)
	}
	s.currentChunk = nil
	s.top = 0
	s.limit = 0
	s.used -= freeSize
}

// allocateFromFreeList flushes the current window and tries to satisfy size
// from the free list, opening a new window over whatever span it finds.
func (s *OldSpace) allocateFromFreeList(size uintptr) (Address, error) {
	s.Flush()

	need := size
	if s.trackingAllocations {
		need += PromotedTrackHeaderSize
	}
	addr, spanSize := s.free.Get(need)
	if addr == 0 {
		return 0, nil
	}

	chunk := s.chunks.ChunkFor(addr)
	s.currentChunk = chunk
	s.top = addr
	s.limit = addr.Add(spanSize)
	// Account all of the span as used for now; Flush will later deduct
	// whatever tail goes unused.
	s.used += spanSize
	if s.trackingAllocations {
		s.promotedTrack = initializePromotedTrack(s.classes, s.promotedTrack, s.top, s.limit)
		s.top = s.top.Add(PromotedTrackHeaderSize)
	}
	return s.Allocate(size)
}

// allocateInNewChunk reserves a fresh chunk from the platform, sized to fit
// at least size bytes (plus tracking header and sentinel), and opens a
// window over the whole thing.
func (s *OldSpace) allocateInNewChunk(size uintptr) (Address, error) {
	trackingSize := uintptr(0)
	if s.trackingAllocations {
		trackingSize = PromotedTrackHeaderSize
	}

	def := s.defaultChunkSize(s.used)
	want := size + trackingSize + WordSize // room for the sentinel
	chunkSize := def
	if want > chunkSize {
		chunkSize = want
	}
	chunkSize = alignUp(chunkSize, s.platform.PageSize())

	_, ok := s.allocateAndUseChunk(chunkSize)
	if !ok {
		return 0, ErrOutOfMemory
	}
	return s.Allocate(size)
}

// allocateAndUseChunk reserves size bytes from the platform, links the new
// chunk into the space, initialises its metadata, and opens an allocation
// window over it.
func (s *OldSpace) allocateAndUseChunk(size uintptr) (*Chunk, bool) {
	mem, ok := s.platform.ReserveVirtual(size)
	if !ok {
		return nil, false
	}
	chunk := newChunk(mem, size)
	s.chunks.Append(chunk)
	s.useWholeChunk(chunk)
	s.meta.InitializeForChunk(chunk)
	return chunk, true
}

// useWholeChunk opens an allocation window spanning the whole of chunk.
func (s *OldSpace) useWholeChunk(chunk *Chunk) {
	s.currentChunk = chunk
	s.top = chunk.Start()
	s.limit = chunk.UsableEnd()
	if s.trackingAllocations {
		s.promotedTrack = initializePromotedTrack(s.classes, s.promotedTrack, s.top, s.limit)
		s.top = s.top.Add(PromotedTrackHeaderSize)
	}
	// Account the whole chunk (minus the sentinel word) as used; Flush
	// will deduct the unused tail once the window closes.
	s.used += chunk.Size() - WordSize
}

// defaultChunkSize returns a page-aligned chunk size that grows with the
// space's current usage, so that large heaps request larger chunks. The
// exact policy matters less than it being monotonic non-decreasing in used.
func (s *OldSpace) defaultChunkSize(used uintptr) uintptr {
	size := used / 4
	if size < s.config.MinChunkSize {
		size = s.config.MinChunkSize
	}
	if size > s.config.MaxChunkSize {
		size = s.config.MaxChunkSize
	}
	return alignUp(size, s.platform.PageSize())
}

// UnlinkPromotedTrack zaps every track on the current promoted-track chain
// into one-word fillers and clears the chain.
func (s *OldSpace) UnlinkPromotedTrack() {
	t := s.promotedTrack
	s.promotedTrack = 0
	for t != 0 {
		next := t.Next()
		t.zap(s.classes.Filler)
		t = next
	}
}

// StartTrackingAllocations flushes the current window and begins tracking
// newly allocated objects in PromotedTrack chains, for a scavenge's
// promotion phase.
func (s *OldSpace) StartTrackingAllocations() {
	s.Flush()
	if s.trackingAllocations {
		panic("heap: StartTrackingAllocations called while already tracking")
	}
	if s.promotedTrack != 0 {
		panic("heap: StartTrackingAllocations called with a non-empty promoted track chain")
	}
	s.trackingAllocations = true
}

// EndTrackingAllocations stops tracking. The promoted-track chain must
// already be fully drained (every track zapped by CompleteScavengeGenerational
// returning false); no mark-sweep may run between the start/end pair.
func (s *OldSpace) EndTrackingAllocations() {
	if !s.trackingAllocations {
		panic("heap: EndTrackingAllocations called while not tracking")
	}
	if s.promotedTrack != 0 {
		panic("heap: EndTrackingAllocations called with undrained promoted track chain")
	}
	s.trackingAllocations = false
}
