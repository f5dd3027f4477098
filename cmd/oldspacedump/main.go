// Command oldspacedump exercises an old-generation mark-sweep heap with a
// synthetic workload and prints its card map, free-list histogram and
// accounting stats. It carries its own toy object representation (every
// object is a fixed-size, pointer-free blob) since there is no real VM
// object system to plug in standalone.
package main

import (
	"flag"
	"fmt"
	"os"
	"unsafe"

	"github.com/nanoheap/oldgen/heap"
)

// liveClass is the class pointer every toy object's header word holds. It
// only needs to be distinct from the three bookkeeping classes handed to
// heap.NewOldSpace below.
const liveClass heap.Address = 0xdead

const toyObjectSize = 4 * heap.WordSize

// toyObjects is the minimal ObjectHeap: every live object is toyObjectSize
// bytes with a single header word (the class pointer) and no outgoing
// pointers.
type toyObjects struct{}

func (toyObjects) Size(addr heap.Address) uintptr          { return toyObjectSize }
func (toyObjects) IteratePointers(heap.Address, heap.PointerVisitor) {}
func (toyObjects) ClassPointer(addr heap.Address) heap.Address {
	return liveClass
}

// noYoungSpace reports every address as belonging to old space; this demo
// never runs a generational scavenge, only full mark-sweep cycles.
type noYoungSpace struct{}

func (noYoungSpace) Includes(heap.Address) bool { return false }

func main() {
	configPath := flag.String("config", "", "path to a heap config YAML file (optional)")
	objectCount := flag.Int("objects", 256, "number of toy objects to allocate")
	surviveEvery := flag.Int("survive-every", 3, "keep a root reference to every Nth object")
	flag.Parse()

	cfg := heap.DefaultConfig()
	if *configPath != "" {
		loaded, err := heap.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "oldspacedump:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	classes := heap.Classes{
		Filler:        heap.Address(1),
		PromotedTrack: heap.Address(2),
		FreeSpan:      heap.Address(3),
	}
	platform := heap.NewHostPlatform(4096)
	space := heap.NewOldSpace(cfg, platform, toyObjects{}, noYoungSpace{}, classes)

	var roots []heap.Address
	for i := 0; i < *objectCount; i++ {
		addr, err := space.Allocate(toyObjectSize)
		if err != nil {
			fmt.Fprintln(os.Stderr, "oldspacedump:", err)
			os.Exit(1)
		}
		if addr.IsZero() {
			break
		}
		*(*uintptr)(unsafe.Pointer(uintptr(addr))) = uintptr(liveClass)
		if i%*surviveEvery == 0 {
			roots = append(roots, addr)
		}
	}
	space.Flush()

	out := heap.DumpWriter(os.Stdout)
	fmt.Fprintln(out, "before collection:")
	heap.DumpStats(out, space.Stats())

	stack := heap.NewMarkingStack(cfg.MarkStackDepth)
	for _, r := range roots {
		stack.Push(r)
	}
	space.Mark(stack, nil)
	space.ProcessWeakPointers()
	space.Sweep()
	space.SetAllocationBudget(cfg.InitialBudget)

	fmt.Fprintln(out, "after collection:")
	heap.DumpStats(out, space.Stats())
	heap.DumpHeap(out, space)
	heap.DumpFreeListHistogram(out, space.FreeList())
}
