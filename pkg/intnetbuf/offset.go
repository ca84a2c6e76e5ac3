package intnetbuf

// Offset is a byte position inside the shared buffer. Offsets read back from
// shared memory are untrusted and go through bounds.check before use.
type Offset uint32

func alignUp(n uint32) uint32 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

func aligned(o Offset) bool {
	return o&(Alignment-1) == 0
}

// bounds is the immutable [start, end) range of a ring's data area.
type bounds struct {
	start, end Offset
}

func (b bounds) size() uint32 {
	return uint32(b.end - b.start)
}

func (b bounds) contains(o Offset) bool {
	return o >= b.start && o < b.end
}

func (b bounds) check(what string, o Offset) error {
	if !b.contains(o) || !aligned(o) {
		return violation("%s %d outside [%d, %d) or misaligned", what, o, b.start, b.end)
	}
	return nil
}

// wrap folds a position that reached the end of the area back to its start.
func (b bounds) wrap(o Offset) Offset {
	if o >= b.end {
		return b.start
	}
	return o
}

// dist is how far forward to is from from, going around the ring.
func (b bounds) dist(from, to Offset) uint32 {
	if to >= from {
		return uint32(to - from)
	}
	return b.size() - uint32(from-to)
}
