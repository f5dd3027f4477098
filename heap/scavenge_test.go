package heap_test

import (
	"testing"
	"unsafe"

	"github.com/nanoheap/oldgen/heap"
)

func youngRegion(n uintptr) (lo, hi heap.Address) {
	buf := make([]uintptr, n/heap.WordSize)
	lo = heap.Address(uintptr(unsafe.Pointer(&buf[0])))
	return lo, lo.Add(n)
}

func TestVisitRememberedSetFindsDirtyCardPointers(t *testing.T) {
	lo, hi := youngRegion(256)
	s := newTestSpace(t, fakeYoung{lo, hi})

	obj := allocObject(t, s)
	setSlot(obj, 0, lo)
	s.Flush()

	chunk := s.Chunks().ChunkFor(obj)
	s.Metadata().SetRemembered(chunk, obj)

	var sawYoungPointer bool
	s.VisitRememberedSet(func(slot, target heap.Address) {
		if target == lo {
			sawYoungPointer = true
		}
	})

	if !sawYoungPointer {
		t.Fatal("VisitRememberedSet never visited the young pointer stored in the dirty card")
	}
	if !s.Metadata().IsRemembered(chunk, obj) {
		t.Fatal("card was cleared even though its object still points into young space")
	}
}

func TestVisitRememberedSetSkipsCleanChunk(t *testing.T) {
	s := newTestSpace(t, nil)
	allocObject(t, s)
	s.Flush()

	s.VisitRememberedSet(func(slot, target heap.Address) {
		t.Fatalf("visitor invoked at slot %#x with every card clean", slot)
	})
}

func TestVisitRememberedSetClearsCardWithNoYoungPointersLeft(t *testing.T) {
	lo, hi := youngRegion(256)
	s := newTestSpace(t, fakeYoung{lo, hi})

	obj := allocObject(t, s)
	setSlot(obj, 0, lo)
	s.Flush()

	chunk := s.Chunks().ChunkFor(obj)
	s.Metadata().SetRemembered(chunk, obj)

	// The visitor rewrites the slot to an old-space address, simulating a
	// scavenger that just finished forwarding the young object.
	other := allocObject(t, s)
	s.VisitRememberedSet(func(slot, target heap.Address) {
		writeWord(slot, other)
	})

	if s.Metadata().IsRemembered(chunk, obj) {
		t.Fatal("card stayed dirty after its only young pointer was forwarded out of young space")
	}
}

// TestVisitRememberedSetScansObjectStraddlingDirtyCard places an object so
// that it begins in one card but carries a pointer slot in the next, dirties
// only the slot's card, and checks the scan still reaches the slot: a dirty
// card must cover objects that merely straddle into it, not just objects
// that begin there.
func TestVisitRememberedSetScansObjectStraddlingDirtyCard(t *testing.T) {
	const objSize = 48
	lo, hi := youngRegion(256)
	s := newTestSpaceWithObjects(t, fakeYoung{lo, hi}, sizedObjects{objSize})

	// Six 48-byte objects: the sixth starts at offset 240 of a 256-byte
	// card, so its second pointer slot (offset 240+16) is the first word of
	// the next card.
	var last heap.Address
	for i := 0; i < 6; i++ {
		last = allocSized(t, s, objSize)
	}
	setSlot(last, 1, lo)
	s.Flush()

	chunk := s.Chunks().ChunkFor(last)
	slot := last.Add(2 * heap.WordSize)
	if got := slot.Sub(chunk.Start()); got != 256 {
		t.Fatalf("slot landed at chunk offset %d, want 256 (first word of the second card)", got)
	}
	s.Metadata().SetRemembered(chunk, slot)

	var sawYoungPointer bool
	s.VisitRememberedSet(func(_, target heap.Address) {
		if target == lo {
			sawYoungPointer = true
		}
	})

	if !sawYoungPointer {
		t.Fatal("VisitRememberedSet never reached the slot of an object straddling into the dirty card")
	}
	if !s.Metadata().IsRemembered(chunk, slot) {
		t.Fatal("slot's card was cleared even though it still holds a young pointer")
	}
}

func TestGenerationalScavengeTrackingRoundTrip(t *testing.T) {
	lo, hi := youngRegion(256)
	s := newTestSpace(t, fakeYoung{lo, hi})

	s.StartTrackingAllocations()
	promoted := allocObject(t, s)
	setSlot(promoted, 0, lo)

	visited := 0
	more := s.CompleteScavengeGenerational(func(slot, target heap.Address) {
		visited++
	})
	if !more {
		t.Fatal("CompleteScavengeGenerational returned false on its first call with a non-empty track")
	}
	if visited == 0 {
		t.Fatal("CompleteScavengeGenerational never visited the promoted object's pointers")
	}

	chunk := s.Chunks().ChunkFor(promoted)
	if !s.Metadata().IsRemembered(chunk, promoted) {
		t.Fatal("promoted object's card was not remembered even though its pointer still targets young space")
	}

	if more = s.CompleteScavengeGenerational(func(heap.Address, heap.Address) {}); more {
		t.Fatal("second CompleteScavengeGenerational call returned true, want false once the chain is drained")
	}

	s.EndTrackingAllocations()
}
