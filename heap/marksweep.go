package heap

// MarkingStack is a bounded stack of addresses awaiting a mark-and-scan
// pass. It never grows past its configured capacity: once full, further
// pushes are dropped and an overflow flag is raised instead.
type MarkingStack struct {
	items      []Address
	capacity   int
	overflowed bool
}

// NewMarkingStack returns an empty stack with room for capacity entries.
func NewMarkingStack(capacity int) *MarkingStack {
	return &MarkingStack{items: make([]Address, 0, capacity), capacity: capacity}
}

// Push appends addr, or sets the overflow flag if the stack is full.
func (m *MarkingStack) Push(addr Address) {
	if len(m.items) >= m.capacity {
		m.overflowed = true
		return
	}
	m.items = append(m.items, addr)
}

func (m *MarkingStack) pop() Address {
	n := len(m.items) - 1
	addr := m.items[n]
	m.items = m.items[:n]
	return addr
}

// IsEmpty reports whether the stack currently holds no entries.
func (m *MarkingStack) IsEmpty() bool { return len(m.items) == 0 }

// Overflowed reports whether a push has been dropped since the last
// ClearOverflow.
func (m *MarkingStack) Overflowed() bool { return m.overflowed }

// ClearOverflow resets the overflow flag, done immediately before an
// overflow-recovery pass so a fresh overflow during that pass is detected.
func (m *MarkingStack) ClearOverflow() { m.overflowed = false }

// OverflowRecoverer lets a generation re-iterate its own objects during
// mark-stack overflow recovery: every already-marked object with
// a not-yet-marked referent is pushed back onto the stack so the referent
// gets discovered on the next drain. Old space implements this itself (see
// OldSpace.IterateOverflowedObjects); a young generation is an external
// collaborator and, if present, must supply its own.
type OverflowRecoverer interface {
	IterateOverflowedObjects(stack *MarkingStack)
}

// markVisitor returns the PointerVisitor used while draining the mark
// stack: for every outgoing pointer slot that targets an unmarked old-space
// object, it pushes the target. Young-space targets and null
// slots are ignored — this subsystem only marks old-space objects; the
// scavenger is responsible for the young generation.
func (s *OldSpace) markVisitor(stack *MarkingStack) PointerVisitor {
	return func(slot, target Address) {
		if target.IsZero() || !s.Includes(target) {
			return
		}
		chunk := s.chunks.ChunkFor(target)
		if s.meta.IsMarked(chunk, target) {
			return
		}
		stack.Push(target)
	}
}

// markEmpty drains the stack: each popped address is marked across its full
// extent and its pointers are iterated (which may push more work).
func (s *OldSpace) markEmpty(stack *MarkingStack, visitor PointerVisitor) {
	for !stack.IsEmpty() {
		addr := stack.pop()
		chunk := s.chunks.ChunkFor(addr)
		size, live := classify(addr, s.classes, s.objects)
		if !live {
			// Only live external objects should ever be pushed; a filler
			// or PromotedTrack address reaching here indicates a caller
			// pushed a root incorrectly.
			panic("heap: marking stack popped a non-object address")
		}
		s.meta.MarkAll(chunk, addr, size)
		s.objects.IteratePointers(addr, visitor)
	}
}

// IterateOverflowedObjects implements OverflowRecoverer for old space: every
// marked object that still has at least one unmarked old-space referent is
// pushed back onto stack. Marked objects whose referents are all marked
// already are skipped — re-pushing those too would refill (and re-overflow)
// the stack every pass once the live set exceeds its capacity, and the
// recovery loop would never observe a drain without overflow.
func (s *OldSpace) IterateOverflowedObjects(stack *MarkingStack) {
	s.chunks.Each(func(chunk *Chunk) {
		addr := chunk.Start()
		for !hasSentinelAt(addr) {
			size, live := classify(addr, s.classes, s.objects)
			if live && s.meta.IsMarked(chunk, addr) && s.hasUnmarkedReferent(addr) {
				stack.Push(addr)
			}
			addr = addr.Add(size)
		}
	})
}

// hasUnmarkedReferent reports whether the object at addr points at any
// old-space object that is not yet marked.
func (s *OldSpace) hasUnmarkedReferent(addr Address) bool {
	found := false
	s.objects.IteratePointers(addr, func(slot, target Address) {
		if found || target.IsZero() || !s.Includes(target) {
			return
		}
		if !s.meta.IsMarkedAddr(target) {
			found = true
		}
	})
	return found
}

// Mark drains stack to a fixpoint, recovering from overflow by having old
// space (and, if supplied, a young generation) re-iterate their already
// marked objects and re-push those that still have an unmarked referent.
// Callers seed the initial
// roots with stack.Push before calling Mark; this subsystem owns no root
// scanning of its own.
func (s *OldSpace) Mark(stack *MarkingStack, young OverflowRecoverer) {
	// Overflow recovery walks chunks linearly, which needs every byte up to
	// the sentinel covered by a readable record; close the allocation window
	// so its uninitialised remainder is a proper free span first.
	s.Flush()
	visitor := s.markVisitor(stack)
	for {
		s.markEmpty(stack, visitor)
		if !stack.Overflowed() {
			return
		}
		stack.ClearOverflow()
		s.IterateOverflowedObjects(stack)
		if young != nil {
			young.IterateOverflowedObjects(stack)
		}
	}
}

// Sweep visits every object in every chunk in address order, rebuilding the
// free list and the object-start table in a single linear pass. Marked
// objects are kept (their start recorded definitively);
// unmarked objects' memory becomes part of an open free span, closed either
// by the next marked object or by the chunk's sentinel — free spans never
// straddle a chunk boundary. Returns the new value of Used().
func (s *OldSpace) Sweep() uintptr {
	s.Flush()
	s.free.Clear()

	var used uintptr
	s.chunks.Each(func(chunk *Chunk) {
		s.meta.ClearStarts(chunk)

		var freeStart Address
		addr := chunk.Start()
		end := chunk.UsableEnd()
		for addr < end {
			if isPromotedTrack(addr, s.classes) {
				panic("heap: Sweep encountered a live PromotedTrack; tracking must be fully drained first")
			}

			size, live := classify(addr, s.classes, s.objects)
			if live && s.meta.IsMarked(chunk, addr) {
				if freeStart != 0 {
					s.free.Add(freeStart, addr.Sub(freeStart))
					freeStart = 0
				}
				s.meta.RecordStart(chunk, addr)
				used += size
			} else {
				if freeStart == 0 {
					freeStart = addr
				}
			}
			addr = addr.Add(size)
		}
		if freeStart != 0 {
			s.free.Add(freeStart, end.Sub(freeStart))
		}

		s.meta.ClearMarks(chunk)
	})

	s.used = used
	return used
}
