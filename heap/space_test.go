package heap_test

import (
	"testing"

	"github.com/nanoheap/oldgen/heap"
)

func TestAllocateAccountsUsed(t *testing.T) {
	s := newTestSpace(t, nil)

	before := s.Used()
	addr := allocObject(t, s)
	if addr.IsZero() {
		t.Fatal("allocObject returned the null address")
	}
	if got := s.Used(); got <= before {
		t.Fatalf("Used() = %d after an allocation, want > %d", got, before)
	}
}

func TestBumpAllocationsAreContiguousWithinOneChunk(t *testing.T) {
	s := newTestSpace(t, nil)

	var prev heap.Address
	var chunk *heap.Chunk
	for i := 0; i < 32; i++ {
		addr := allocObject(t, s)
		if prev != 0 && addr != prev.Add(testObjSize) {
			t.Fatalf("allocation %d landed at %#x, want %#x (bump path must be contiguous)", i, addr, prev.Add(testObjSize))
		}
		if c := s.Chunks().ChunkFor(addr); chunk == nil {
			chunk = c
		} else if c != chunk {
			t.Fatalf("allocation %d switched chunks, want all 32 in the first chunk", i)
		}
		prev = addr
	}
}

func TestFlushReturnsTailToFreeList(t *testing.T) {
	s := newTestSpace(t, nil)
	allocObject(t, s)
	s.Flush()

	if s.FreeList().TotalBytes() == 0 {
		t.Fatal("Flush() left nothing on the free list, want the unused tail of the chunk")
	}
}

func TestAllocationBudgetDecreasesBySize(t *testing.T) {
	s := newTestSpace(t, nil)
	before := s.AllocationBudget()
	allocObject(t, s)
	after := s.AllocationBudget()

	if before-after != int64(testObjSize) {
		t.Fatalf("budget dropped by %d, want %d", before-after, testObjSize)
	}
}

func TestSetAllocationBudgetResets(t *testing.T) {
	s := newTestSpace(t, nil)
	s.SetAllocationBudget(0)
	if s.AllocationBudget() != 0 {
		t.Fatalf("AllocationBudget() = %d after SetAllocationBudget(0), want 0", s.AllocationBudget())
	}
	s.SetAllocationBudget(4096)
	if s.AllocationBudget() != 4096 {
		t.Fatalf("AllocationBudget() = %d, want 4096", s.AllocationBudget())
	}
}

func TestAllocateSignalsCollectionOnExhaustedBudget(t *testing.T) {
	s := newTestSpace(t, nil)
	s.SetAllocationBudget(0)

	addr, err := s.Allocate(testObjSize)
	if err != nil {
		t.Fatalf("Allocate returned an error rather than asking for a collection: %v", err)
	}
	if !addr.IsZero() {
		t.Fatalf("Allocate succeeded with budget <= 0, want 0 (caller should collect and retry)")
	}
}

func TestNoAllocationFailureScopeIgnoresBudget(t *testing.T) {
	s := newTestSpace(t, nil)
	s.SetAllocationBudget(0)

	scope := s.EnterNoAllocationFailureScope()
	defer scope.Exit()

	addr, err := s.Allocate(testObjSize)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr.IsZero() {
		t.Fatal("Allocate returned 0 inside a NoAllocationFailureScope, want it to still succeed via a new chunk")
	}
}

func TestFlushWhileTrackingBeforeAnyAllocationIsANoOp(t *testing.T) {
	s := newTestSpace(t, nil)

	s.StartTrackingAllocations()
	s.Flush()
	s.EndTrackingAllocations()
}

func TestIncludesAndNewLocation(t *testing.T) {
	s := newTestSpace(t, nil)
	addr := allocObject(t, s)

	if !s.Includes(addr) {
		t.Fatal("Includes() false for an address this space allocated")
	}
	if s.Includes(heap.Address(0xdeadbeef)) {
		t.Fatal("Includes() true for an address outside every chunk")
	}

	stack := heap.NewMarkingStack(64)
	stack.Push(addr)
	s.Mark(stack, nil)

	if got := s.NewLocation(addr); got != addr {
		t.Fatalf("NewLocation(%#x) = %#x, want the same address (non-moving space)", addr, got)
	}
}
