package heap_test

import (
	"testing"

	"github.com/nanoheap/oldgen/heap"
)

func TestProcessWeakPointersClearsDeadAndInvokesFinalizerOnce(t *testing.T) {
	s := newTestSpace(t, nil)
	live := allocObject(t, s)
	dead := allocObject(t, s)
	s.Flush()

	liveRef := &heap.WeakRef{Target: live}
	var finalizedCount int
	var finalizedWith heap.Address
	deadRef := &heap.WeakRef{Target: dead, Finalizer: func(addr heap.Address) {
		finalizedCount++
		finalizedWith = addr
	}}
	s.RegisterWeakReference(liveRef)
	s.RegisterWeakReference(deadRef)

	stack := heap.NewMarkingStack(64)
	stack.Push(live)
	s.Mark(stack, nil)
	s.ProcessWeakPointers()

	if liveRef.Target != live {
		t.Fatalf("ProcessWeakPointers cleared a reference to a live, marked object")
	}
	if deadRef.Target != 0 {
		t.Fatalf("ProcessWeakPointers left Target=%#x for an unmarked object, want 0", deadRef.Target)
	}
	if finalizedCount != 1 {
		t.Fatalf("finalizer ran %d times, want exactly once", finalizedCount)
	}
	if finalizedWith != dead {
		t.Fatalf("finalizer ran with %#x, want the dead object's address %#x", finalizedWith, dead)
	}

	s.Sweep()
	if finalizedCount != 1 {
		t.Fatal("Sweep re-ran a finalizer that ProcessWeakPointers already invoked")
	}
}

func TestProcessWeakPointersNeverResurrects(t *testing.T) {
	s := newTestSpace(t, nil)
	dead := allocObject(t, s)
	s.Flush()

	ref := &heap.WeakRef{Target: dead, Finalizer: func(addr heap.Address) {
		// The finalizer does nothing: clearing ref.Target and leaving the
		// object unmarked is entirely the pass's own doing.
	}}
	s.RegisterWeakReference(ref)

	stack := heap.NewMarkingStack(64)
	s.Mark(stack, nil)
	s.ProcessWeakPointers()

	if ref.Target != 0 {
		t.Fatalf("Target = %#x after ProcessWeakPointers, want 0 with no resurrection", ref.Target)
	}
	if s.IsAlive(dead) {
		t.Fatal("object reported alive after being found unmarked by ProcessWeakPointers")
	}
}
