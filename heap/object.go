package heap

// ObjectHeap is the external contract the object/class system must satisfy:
// for any address that is the start of a live object, the space
// needs to know the object's size, be able to visit its outgoing reference
// slots, and be able to read its class pointer. This package never
// interprets an object's payload itself — it only ever calls through this
// interface for anything beyond its own free-list/filler/PromotedTrack
// bookkeeping records, which it reads and writes directly since it wrote
// them itself.
type ObjectHeap interface {
	// Size returns the word-aligned byte size of the live object at addr,
	// including its header.
	Size(addr Address) uintptr

	// IteratePointers invokes visit once per outgoing reference slot held by
	// the object at addr.
	IteratePointers(addr Address, visit PointerVisitor)

	// ClassPointer returns the class pointer word stored in the object's
	// header. Nothing in this package calls it; its own walks read the
	// header word directly (see classify).
	ClassPointer(addr Address) Address
}

// PointerVisitor is invoked once per outgoing reference slot found while
// iterating an object's pointers. slot is the address of the field itself
// (so a visitor may rewrite it, e.g. to install a forwarding pointer during
// scavenging); target is the address currently stored there.
type PointerVisitor func(slot Address, target Address)

// YoungSpace lets the remembered-set scan recognise an intergenerational
// pointer.
type YoungSpace interface {
	Includes(addr Address) bool
}

// Classes names the class pointers the core itself must write into headers
// it owns: the one-word filler and PromotedTrack descriptors,
// plus a free-span class stamped at the head of every tracked free-list
// record so that a linear chunk walk can step over free memory the same way
// it steps over fillers and tracks. All three are otherwise-opaque Address
// values minted by the external class/object system; this package never
// looks inside them, only compares them for identity. They must be distinct
// from each other and from every live object class.
type Classes struct {
	Filler        Address
	PromotedTrack Address
	FreeSpan      Address
}
