package heap

import "unsafe"

// FreeList holds the set of free spans in a space, bucketed by exact length
// and ordered by length so that worst-fit retrieval is a single pointer
// chase. The records live inside the free memory they describe: the moment a
// span is handed out by Get, its former contents (including any FreeList
// bookkeeping) are invalid.
//
// Every record starts with the FreeSpan class word followed by the span's
// size, so a linear chunk walk can step over a free span exactly like any
// other in-heap record (see classify). The structure mirrors a textbook
// segregated free list, but — unlike a best-fit or first-fit list — the outer
// chain is kept sorted by *descending* length, so the head of the chain is
// always the single largest free span in the space. Worst-fit retrieval is
// then "is the head big enough?" rather than a search.
type FreeList struct {
	sizes   Address // head of the descending-by-length chain, or 0
	classes Classes
}

// freeSpan is the record written at the start of the first-seen free span of
// a given length. It anchors both chains: nextSize links to the next
// (smaller) distinct length, more links to any other spans of this same
// exact length, oldest first.
type freeSpan struct {
	class    Address
	size     uintptr
	nextSize Address
	more     Address
}

// freeSpanMore is the record written at the start of any free span beyond
// the first of its length. It carries the same class/size prefix as freeSpan
// so chunk walks need not care which of the two they stepped onto.
type freeSpanMore struct {
	class Address
	size  uintptr
	next  Address
}

const freeSpanHeaderSize = unsafe.Sizeof(freeSpan{})

// NewFreeList returns an empty free list. classes supplies the FreeSpan
// class word written at the head of every tracked span and the filler class
// stamped over spans too small to track (see Add).
func NewFreeList(classes Classes) *FreeList {
	return &FreeList{classes: classes}
}

func (f *FreeList) readSpan(addr Address) *freeSpan {
	return (*freeSpan)(unsafe.Pointer(addr))
}

func (f *FreeList) readMore(addr Address) *freeSpanMore {
	return (*freeSpanMore)(unsafe.Pointer(addr))
}

// freeSpanSizeAt reads the size field of the free-span record at addr. The
// caller must already have checked that addr's class word is the FreeSpan
// class; freeSpan and freeSpanMore share the class/size prefix, so this is
// valid for both record kinds.
func freeSpanSizeAt(addr Address) uintptr {
	return readWord(addr.Add(WordSize))
}

// Add returns a span of size bytes starting at addr to the pool. It must not
// be called with spans that straddle a chunk boundary.
//
// A span shorter than freeSpanHeaderSize has no room for a record, and
// writing one anyway overruns the span (into a chunk-end sentinel or an
// adjacent live object). Spans that small are stamped word by word with the
// filler class instead, so a linear chunk walk still steps over them one
// word at a time, and are never linked into a bucket: there is no way to
// hand one back out of a list without a header to read.
func (f *FreeList) Add(addr Address, size uintptr) {
	if size == 0 {
		return
	}
	if size < freeSpanHeaderSize {
		f.fill(addr, size)
		return
	}

	prev := &f.sizes
	cur := f.sizes
	for cur != 0 {
		node := f.readSpan(cur)
		if node.size <= size {
			break
		}
		prev = &node.nextSize
		cur = node.nextSize
	}

	if cur != 0 && f.readSpan(cur).size == size {
		// Same length as an existing bucket: append to the tail of the
		// "more" chain, so the chain reads oldest-to-newest front to back
		// (see Get, which relies on this to break ties in insertion order).
		head := f.readSpan(cur)
		m := f.readMore(addr)
		m.class = f.classes.FreeSpan
		m.size = size
		m.next = 0
		if head.more == 0 {
			head.more = addr
			return
		}
		tailAddr := head.more
		tail := f.readMore(tailAddr)
		for tail.next != 0 {
			tailAddr = tail.next
			tail = f.readMore(tailAddr)
		}
		tail.next = addr
		return
	}

	// New distinct length: splice in a new bucket head.
	node := f.readSpan(addr)
	node.class = f.classes.FreeSpan
	node.size = size
	node.nextSize = cur
	node.more = 0
	*prev = addr
}

// fill stamps every word of [addr, addr+size) with the filler class, for
// spans too small to hold a freeSpan record.
func (f *FreeList) fill(addr Address, size uintptr) {
	for off := uintptr(0); off < size; off += WordSize {
		writeWord(addr.Add(off), uintptr(f.classes.Filler))
	}
}

// Get returns a span of at least n bytes, worst-fit: the largest available
// span, provided it is big enough. Ties are broken by insertion order within
// that length's bucket. Returns (0, 0) if no span is large enough.
func (f *FreeList) Get(n uintptr) (addr Address, size uintptr) {
	if f.sizes == 0 {
		return 0, 0
	}
	head := f.readSpan(f.sizes)
	if head.size < n {
		// The globally largest span isn't big enough; nothing is.
		return 0, 0
	}

	bucketAddr := f.sizes
	bucketSize := head.size

	if head.more == 0 {
		// Only span of this length; unlink the whole bucket.
		f.sizes = head.nextSize
		return bucketAddr, bucketSize
	}

	// The bucket head is the oldest span of this length (Add only ever
	// creates a bucket head for the first span of a length, and appends
	// later ones to the tail of "more"). Hand it out and promote the front
	// of the "more" chain — the second-oldest span — into the head's place,
	// so ties keep being broken by insertion order on later Gets too.
	promoteAddr := head.more
	rest := f.readMore(promoteAddr).next

	newHead := f.readSpan(promoteAddr)
	newHead.class = f.classes.FreeSpan
	newHead.size = bucketSize
	newHead.nextSize = head.nextSize
	newHead.more = rest

	f.sizes = promoteAddr
	return bucketAddr, bucketSize
}

// Clear empties the free list. It does not release any backing memory — the
// chunks themselves remain owned by the space. Used at the start of a sweep,
// which rebuilds the list from scratch.
func (f *FreeList) Clear() {
	f.sizes = 0
}

// Len reports the number of free spans currently tracked (for tests/debug;
// not on any collection hot path).
func (f *FreeList) Len() int {
	n := 0
	for cur := f.sizes; cur != 0; {
		n++
		node := f.readSpan(cur)
		for m := node.more; m != 0; m = f.readMore(m).next {
			n++
		}
		cur = node.nextSize
	}
	return n
}

// TotalBytes reports the sum of all free span sizes.
func (f *FreeList) TotalBytes() uintptr {
	var total uintptr
	for cur := f.sizes; cur != 0; {
		node := f.readSpan(cur)
		total += node.size
		for m := node.more; m != 0; m = f.readMore(m).next {
			total += node.size
		}
		cur = node.nextSize
	}
	return total
}
