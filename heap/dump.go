package heap

import (
	"fmt"
	"io"
	"os"

	"github.com/inhies/go-bytesize"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func humanSize(n uintptr) string {
	return bytesize.New(float64(n)).String()
}

// DumpWriter returns an io.Writer for heap dump output that renders ANSI
// colour when the destination is a real terminal (Windows consoles need
// go-colorable's translation layer; everything else gets a plain passthrough)
// and strips colour codes otherwise, e.g. when output is redirected to a
// file in a test log.
func DumpWriter(f *os.File) io.Writer {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return colorable.NewColorable(f)
	}
	return colorable.NewNonColorable(f)
}

const (
	ansiReset  = "\x1b[0m"
	ansiLive   = "\x1b[32m#\x1b[0m"
	ansiFree   = "\x1b[90m·\x1b[0m"
	ansiFiller = "\x1b[33m-\x1b[0m"
)

// DumpHeap renders one glyph per card of every chunk, judged by the object
// at the card's recorded start: '#' if it is a live, marked object, '-' if it
// is filler, a free span or an unmarked object, '·' for a card with no
// recorded object start at all. Sweep clears mark bits, so after a sweep
// every surviving object shows as '-'. Intended for debug use only.
func DumpHeap(w io.Writer, s *OldSpace) {
	fmt.Fprintln(w, "old space:")
	cardSize := s.meta.CardSize()
	col := 0
	s.chunks.Each(func(chunk *Chunk) {
		numCards := uintptr(len(chunk.starts))
		for i := uintptr(0); i < numCards; i++ {
			glyph := ansiFree
			if chunk.starts[i] != kNoObjectStart {
				addr := ObjectAddressFromStart(chunk.start.Add(i*cardSize), chunk.starts[i])
				if _, live := classify(addr, s.classes, s.objects); live && s.meta.IsMarked(chunk, addr) {
					glyph = ansiLive
				} else {
					glyph = ansiFiller
				}
			}
			fmt.Fprint(w, glyph)
			col++
			if col%64 == 0 {
				fmt.Fprintln(w)
			}
		}
	})
	if col%64 != 0 {
		fmt.Fprintln(w)
	}
}

// DumpFreeListHistogram prints one line per distinct free span length
// currently in the free list, largest first, with a count of how many spans
// share that length.
func DumpFreeListHistogram(w io.Writer, f *FreeList) {
	fmt.Fprintln(w, "free spans:")
	for cur := f.sizes; cur != 0; {
		node := f.readSpan(cur)
		count := 1
		for m := node.more; m != 0; m = f.readMore(m).next {
			count++
		}
		fmt.Fprintf(w, "- %d x %d\n", node.size, count)
		cur = node.nextSize
	}
}

// DumpStats prints a HeapStats snapshot in a human-readable, bytesize-aware
// form.
func DumpStats(w io.Writer, stats HeapStats) {
	fmt.Fprintf(w, "used=%s free=%s chunks=%d budget=%d allocs=%d total=%s\n",
		humanSize(stats.Used), humanSize(stats.Free), stats.ChunkCount,
		stats.AllocationBudget, stats.AllocationCount, humanSize(uintptr(stats.TotalAllocated)))
}
