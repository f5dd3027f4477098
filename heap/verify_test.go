package heap_test

import (
	"testing"

	"github.com/nanoheap/oldgen/heap"
)

func TestVerifyCleanHeapHasNoViolations(t *testing.T) {
	s := newTestSpace(t, nil)
	root := allocObject(t, s)
	other := allocObject(t, s)
	setSlot(root, 0, other)
	s.Flush()

	stack := heap.NewMarkingStack(64)
	stack.Push(root)
	s.Mark(stack, nil)

	if errs := s.Verify(); len(errs) != 0 {
		t.Fatalf("Verify() reported %d violations on a consistent heap: %v", len(errs), errs[0])
	}
}

func TestVerifyCatchesUnrememberedYoungPointer(t *testing.T) {
	lo, hi := youngRegion(256)
	s := newTestSpace(t, fakeYoung{lo, hi})

	obj := allocObject(t, s)
	setSlot(obj, 0, lo)
	s.Flush()
	// Deliberately skip SetRemembered, simulating a missing write barrier.

	stack := heap.NewMarkingStack(64)
	stack.Push(obj)
	s.Mark(stack, nil)

	errs := s.Verify()
	if len(errs) == 0 {
		t.Fatal("Verify() found no violations for a marked object holding an unremembered young pointer")
	}
}
