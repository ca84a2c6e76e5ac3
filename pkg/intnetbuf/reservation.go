package intnetbuf

import "github.com/lab47/intnet/pkg/gso"

// Reservation is the producer's exclusive claim on a range of a ring, handed
// out by Allocate. It must be finished exactly once with Commit,
// CommitPartial or Discard; until then the ring refuses further allocations.
type Reservation struct {
	ring   *Ring
	place  placement
	kind   Kind
	length uint32
	done   bool
}

func (res *Reservation) Kind() Kind {
	return res.kind
}

// Len is the payload length that was requested, gso context included.
func (res *Reservation) Len() int {
	return int(res.length)
}

// Payload returns the reserved payload bytes in shared memory, or nil once
// the reservation has been committed or discarded.
func (res *Reservation) Payload() []byte {
	if res.done {
		return nil
	}

	p := res.place.payload
	n := Offset(res.length)
	return res.ring.mem[p : p+n : p+n]
}

// Frame returns the part of the payload that holds the Ethernet frame.
func (res *Reservation) Frame() []byte {
	p := res.Payload()
	if p == nil {
		return nil
	}

	if res.kind == KindGso {
		return p[GsoContextSize:]
	}
	return p
}

// SetGso overwrites the gso context of a Gso reservation.
func (res *Reservation) SetGso(ctx gso.Context) error {
	if res.done {
		return violation("reservation at %d already committed", res.place.hdr)
	}

	if res.kind != KindGso {
		return ErrInvalidSize
	}
	encodeGso(res.Payload(), ctx)
	return nil
}

// Commit publishes the whole reservation to the consumer.
func (res *Reservation) Commit() error {
	return res.publish(res.length, true)
}

// CommitPartial publishes only the first used bytes of the payload (gso
// context included for Gso records). The unused rest of the reservation
// becomes a Padding record so that the ring stays self describing.
func (res *Reservation) CommitPartial(used int) error {
	if res.done {
		return violation("reservation at %d committed twice", res.place.hdr)
	}

	if used < 0 || uint32(used) > res.length {
		return ErrInvalidSize
	}

	if res.kind == KindGso && used < GsoContextSize {
		return ErrInvalidSize
	}

	var (
		mem      = res.ring.mem
		reserved = alignUp(res.length)
		kept     = alignUp(uint32(used))
	)

	if kept < reserved {
		pad := res.place.payload + Offset(kept)
		encodeHeader(mem[pad:], header{
			kind:          KindPadding,
			length:        reserved - kept - HeaderSize,
			payloadOffset: HeaderSize,
		})
	}

	encodeHeader(mem[res.place.hdr:], header{
		kind:          res.kind,
		length:        uint32(used),
		payloadOffset: int32(int64(res.place.payload) - int64(res.place.hdr)),
	})

	return res.publish(uint32(used), true)
}

// Discard gives the reservation back by turning it into padding. The space
// becomes reusable once the consumer skips over it.
func (res *Reservation) Discard() error {
	if res.done {
		return violation("reservation at %d committed twice", res.place.hdr)
	}

	encodeHeader(res.ring.mem[res.place.hdr:], header{
		kind:          KindPadding,
		length:        res.length,
		payloadOffset: int32(int64(res.place.payload) - int64(res.place.hdr)),
	})

	return res.publish(0, false)
}

func (res *Reservation) publish(n uint32, count bool) error {
	if res.done {
		return violation("reservation at %d committed twice", res.place.hdr)
	}

	r := res.ring

	// Records are published in allocation order, so the commit cursor has to
	// be sitting on our header.
	if cur := r.desc.WriteCommit(); cur != res.place.hdr {
		return violation("commit cursor at %d, reservation at %d", cur, res.place.hdr)
	}

	res.done = true

	r.desc.SetWriteCommit(res.place.next)
	if count {
		r.desc.addWritten(uint64(n))
	}
	r.open.Store(false)

	return nil
}
