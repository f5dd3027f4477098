package heap

import "unsafe"

// promotedTrackHeader is the in-heap track record layout: a class
// pointer (so generic chunk traversal recognises it), a link to the
// previously-open track (forming promoted_track_'s chain), and the [start,
// end) range of the promoted objects that follow the header in memory.
type promotedTrackHeader struct {
	class Address
	next  Address
	start Address
	end   Address
}

// PromotedTrackHeaderSize is the number of bytes a PromotedTrack header
// occupies at the front of an allocation window opened while tracking is on.
const PromotedTrackHeaderSize = unsafe.Sizeof(promotedTrackHeader{})

// PromotedTrack is a handle onto an in-heap PromotedTrack record. It is a
// thin view over an Address, not a cached copy: once the allocation window
// it was carved from is flushed or reused, any PromotedTrack value pointing
// into it must be re-derived, never retained across an allocation.
type PromotedTrack Address

func (t PromotedTrack) header() *promotedTrackHeader {
	return (*promotedTrackHeader)(unsafe.Pointer(Address(t)))
}

// initializePromotedTrack writes a new track header at begin, covering
// [begin+HeaderSize, end), linked in front of previous. It returns the new
// head of the promoted-track chain.
func initializePromotedTrack(classes Classes, previous PromotedTrack, begin, end Address) PromotedTrack {
	t := PromotedTrack(begin)
	h := t.header()
	h.class = classes.PromotedTrack
	h.next = Address(previous)
	h.start = begin.Add(PromotedTrackHeaderSize)
	h.end = end
	return t
}

// Start returns the first address covered by this track.
func (t PromotedTrack) Start() Address { return t.header().start }

// End returns the address one past the last byte covered by this track.
func (t PromotedTrack) End() Address { return t.header().end }

// Next returns the previously-open track this one was linked in front of.
func (t PromotedTrack) Next() PromotedTrack { return PromotedTrack(t.header().next) }

// setEnd shrinks the tracked range, used when the allocation window housing
// this track is flushed before being filled.
func (t PromotedTrack) setEnd(e Address) { t.header().end = e }

// zap overwrites every word of the track header with the one-word filler
// class pointer so that a subsequent chunk walk treats each header word as
// an inert filler object and steps over all of them. Stamping only the class
// word would leave the next/start/end words behind as garbage headers — the
// next link of the last track in a chain is zero, which a walk would read as
// a chunk-end sentinel. This must only be called once a track's [start, end)
// has been fully scanned.
func (t PromotedTrack) zap(filler Address) {
	for off := uintptr(0); off < PromotedTrackHeaderSize; off += WordSize {
		writeWord(Address(t).Add(off), uintptr(filler))
	}
}

// isPromotedTrack reports whether the class pointer stored at addr matches
// the PromotedTrack class, i.e. whether addr is the head of a live track
// (not yet zapped).
func isPromotedTrack(addr Address, classes Classes) bool {
	return Address(readWord(addr)) == classes.PromotedTrack
}

// classify reads the word at addr's header slot and dispatches it to one of
// the three kinds of record this package itself writes into the heap (a
// one-word filler, a PromotedTrack header, or a free-span record), or else
// treats it as a live external object and asks objects for its size. live is
// false for the internal record kinds, since none of them is a traversable
// object: a filler has no payload, a free span's interior is dead memory,
// and a not-yet-scanned PromotedTrack's interior is uninitialised memory
// that must be skipped over whole, not stepped into.
func classify(addr Address, classes Classes, objects ObjectHeap) (size uintptr, live bool) {
	switch Address(readWord(addr)) {
	case classes.Filler:
		return WordSize, false
	case classes.PromotedTrack:
		t := PromotedTrack(addr)
		return t.End().Sub(addr), false
	case classes.FreeSpan:
		return freeSpanSizeAt(addr), false
	default:
		return objects.Size(addr), true
	}
}
