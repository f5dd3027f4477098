package heap_test

import (
	"testing"
	"unsafe"

	"github.com/nanoheap/oldgen/heap"
)

// Every toy object in these tests is one header word (the class pointer)
// followed by testObjSlots pointer-sized slots, which is enough to build
// small reference graphs for mark-sweep, scavenge and remembered-set tests
// without a real object/class system.
const testObjSlots = 2
const testObjSize = (1 + testObjSlots) * heap.WordSize

const liveClass heap.Address = 0x10000

// fakeObjects implements heap.ObjectHeap over the toy object layout above.
type fakeObjects struct{}

func (fakeObjects) Size(heap.Address) uintptr { return testObjSize }

func (fakeObjects) ClassPointer(addr heap.Address) heap.Address {
	return readWord(addr)
}

func (fakeObjects) IteratePointers(addr heap.Address, visit heap.PointerVisitor) {
	base := uintptr(addr) + heap.WordSize
	for i := 0; i < testObjSlots; i++ {
		slot := heap.Address(base + uintptr(i)*heap.WordSize)
		visit(slot, readWord(slot))
	}
}

// sizedObjects is fakeObjects with a configurable object size: still one
// header word and testObjSlots pointer slots, with the remainder padding.
// Lets tests place object and card boundaries precisely.
type sizedObjects struct{ size uintptr }

func (o sizedObjects) Size(heap.Address) uintptr { return o.size }

func (sizedObjects) ClassPointer(addr heap.Address) heap.Address {
	return readWord(addr)
}

func (sizedObjects) IteratePointers(addr heap.Address, visit heap.PointerVisitor) {
	fakeObjects{}.IteratePointers(addr, visit)
}

func readWord(addr heap.Address) heap.Address {
	return heap.Address(*(*uintptr)(unsafe.Pointer(uintptr(addr))))
}

func writeWord(addr heap.Address, v heap.Address) {
	*(*uintptr)(unsafe.Pointer(uintptr(addr))) = uintptr(v)
}

// setSlot stores target into toy object addr's i'th outgoing pointer slot.
func setSlot(addr heap.Address, i int, target heap.Address) {
	writeWord(heap.Address(uintptr(addr)+heap.WordSize+uintptr(i)*heap.WordSize), target)
}

// fakeYoung treats [lo, hi) as young space, for remembered-set tests.
type fakeYoung struct{ lo, hi heap.Address }

func (y fakeYoung) Includes(addr heap.Address) bool { return addr >= y.lo && addr < y.hi }

func testClasses() heap.Classes {
	return heap.Classes{
		Filler:        heap.Address(1),
		PromotedTrack: heap.Address(2),
		FreeSpan:      heap.Address(3),
	}
}

func newTestSpace(t *testing.T, young heap.YoungSpace) *heap.OldSpace {
	t.Helper()
	return newTestSpaceWithObjects(t, young, fakeObjects{})
}

func newTestSpaceWithObjects(t *testing.T, young heap.YoungSpace, objects heap.ObjectHeap) *heap.OldSpace {
	t.Helper()
	cfg := heap.DefaultConfig()
	cfg.MinChunkSize = 4096
	cfg.MaxChunkSize = 4096
	platform := heap.NewHostPlatform(4096)
	if young == nil {
		young = fakeYoung{}
	}
	return heap.NewOldSpace(cfg, platform, objects, young, testClasses())
}

// allocSized is allocObject for a space built over sizedObjects.
func allocSized(t *testing.T, s *heap.OldSpace, size uintptr) heap.Address {
	t.Helper()
	addr, err := s.Allocate(size)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr.IsZero() {
		t.Fatalf("Allocate returned 0, want a fresh object (budget exhausted in test?)")
	}
	writeWord(addr, liveClass)
	return addr
}

// allocObject allocates a toy object and stamps its class word, failing the
// test on any allocation error or out-of-memory result.
func allocObject(t *testing.T, s *heap.OldSpace) heap.Address {
	t.Helper()
	addr, err := s.Allocate(testObjSize)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr.IsZero() {
		t.Fatalf("Allocate returned 0, want a fresh object (budget exhausted in test?)")
	}
	writeWord(addr, liveClass)
	return addr
}
