package intnetbuf

import (
	"io"
	"sync/atomic"

	"github.com/lab47/intnet/pkg/gso"
	"github.com/lab47/intnet/pkg/sg"
)

// PoisonByte is written over consumed records when poisoning is enabled.
const PoisonByte = 0xdd

// Ring is one direction of a Buffer. The write side accepts one producer at a
// time: a Reservation must be committed (or discarded) before the next
// Allocate. The read side has exactly one consumer.
//
// Nothing here blocks. Waiting for space or data is up to the caller.
type Ring struct {
	mem    []byte
	desc   descAccess
	bounds bounds
	poison bool

	open atomic.Bool

	// consumer state, owned by the single reader
	peeked   bool
	peekAt   Offset
	peekBody bounds
	peekNext Offset
}

func newRing(mem []byte, desc descAccess, o *options) *Ring {
	return &Ring{
		mem:    mem,
		desc:   desc,
		bounds: bounds{start: desc.Start(), end: desc.End()},
		poison: o.poison,
	}
}

// Capacity returns the size of the ring's data area in bytes.
func (r *Ring) Capacity() int {
	return int(r.bounds.size())
}

type placement struct {
	intent  Offset
	hdr     Offset
	payload Offset
	next    Offset
}

// plan picks where a payload of size bytes would go given the current
// cursors. It does not modify the ring.
func (r *Ring) plan(size uint32) (placement, error) {
	intent := r.desc.WriteIntent()
	read := r.desc.Read()

	if err := r.bounds.check("write intent", intent); err != nil {
		return placement{}, err
	}

	if err := r.bounds.check("read cursor", read); err != nil {
		return placement{}, err
	}

	var (
		start = r.bounds.start
		end   = r.bounds.end
		body  = alignUp(size)
		total = uint64(HeaderSize) + uint64(body)
	)

	if read <= intent {
		if uint64(intent)+total <= uint64(end) {
			next := r.bounds.wrap(intent + Offset(total))

			// Landing on the reader would make a full ring look empty.
			if next != read {
				return placement{
					intent:  intent,
					hdr:     intent,
					payload: intent + HeaderSize,
					next:    next,
				}, nil
			}
		}

		// The header stays at the tail, the payload goes to the start. The
		// check is strict so that read == intent keeps meaning empty.
		if uint32(read-start) > body {
			return placement{
				intent:  intent,
				hdr:     intent,
				payload: start,
				next:    start + Offset(body),
			}, nil
		}

		return placement{}, ErrBufferFull
	}

	if uint64(intent)+total < uint64(read) {
		return placement{
			intent:  intent,
			hdr:     intent,
			payload: intent + HeaderSize,
			next:    intent + Offset(total),
		}, nil
	}

	return placement{}, ErrBufferFull
}

// claim tries to take ownership of p by moving the write intent cursor.
func (r *Ring) claim(p placement, kind Kind, size uint32) (*Reservation, error) {
	if !r.desc.CASWriteIntent(p.intent, p.next) {
		return nil, ErrRaceLost
	}

	encodeHeader(r.mem[p.hdr:], header{
		kind:          kind,
		length:        size,
		payloadOffset: int32(int64(p.payload) - int64(p.hdr)),
	})

	return &Reservation{
		ring:   r,
		place:  p,
		kind:   kind,
		length: size,
	}, nil
}

// Allocate reserves room for a payload of size bytes. For KindGso, size
// includes the GsoContextSize bytes of gso context.
//
// ErrBufferFull and ErrRaceLost are distinct on purpose: the first is
// backpressure, the second only asks for a retry.
func (r *Ring) Allocate(size int, kind Kind) (*Reservation, error) {
	switch kind {
	case KindFrame:
	case KindGso:
		if size < GsoContextSize {
			return nil, ErrInvalidSize
		}
	default:
		return nil, ErrInvalidSize
	}

	if size < 0 || size > MaxFrameSize {
		return nil, ErrInvalidSize
	}

	// Larger than the whole ring: it will never fit, but to the producer
	// that is still backpressure.
	if size > r.maxPayload() {
		r.desc.addOverflow()
		return nil, ErrBufferFull
	}

	if !r.open.CompareAndSwap(false, true) {
		return nil, ErrReservationOpen
	}

	p, err := r.plan(uint32(size))
	if err != nil {
		r.open.Store(false)
		if err == ErrBufferFull {
			r.desc.addOverflow()
		}
		return nil, err
	}

	res, err := r.claim(p, kind, uint32(size))
	if err != nil {
		r.open.Store(false)
		return nil, err
	}

	return res, nil
}

// maxPayload is the largest payload an empty ring can take. A record may
// not fill the ring completely or the write cursor would land on the reader.
func (r *Ring) maxPayload() int {
	return r.Capacity() - HeaderSize - Alignment
}

// MaxFrame returns the largest frame a single record can ever carry in this
// ring, with room for a gso context when withGso is set.
func (r *Ring) MaxFrame(withGso bool) int {
	n := r.maxPayload()
	if withGso {
		n -= GsoContextSize
	}

	return min(n, MaxFrameSize)
}

// AllocateGso reserves a Gso record for a frame of frameLen bytes and writes
// ctx in front of it. The context is copied verbatim.
func (r *Ring) AllocateGso(frameLen int, ctx gso.Context) (*Reservation, error) {
	res, err := r.Allocate(frameLen+GsoContextSize, KindGso)
	if err != nil {
		return nil, err
	}

	encodeGso(res.Payload(), ctx)

	return res, nil
}

// Peek returns the next unread record without consuming it. ok is false when
// the ring is empty.
func (r *Ring) Peek() (rec Record, ok bool, err error) {
	r.peeked = false

	read := r.desc.Read()
	commit := r.desc.WriteCommit()

	if read == commit {
		return Record{}, false, nil
	}

	if err := r.bounds.check("write commit", commit); err != nil {
		return Record{}, false, err
	}

	rec, body, next, err := r.readRecordAt(read)
	if err != nil {
		return Record{}, false, err
	}

	// A record may only cover bytes the producer has published.
	if d := r.bounds.dist(read, next); d == 0 || d > r.bounds.dist(read, commit) {
		return Record{}, false, violation("record at %d with length %d runs past the commit cursor %d", read, rec.Length, commit)
	}

	r.peeked = true
	r.peekAt = read
	r.peekBody = body
	r.peekNext = next

	return rec, true, nil
}

// readRecordAt decodes and validates the record header at off. It returns
// the record, the byte range its payload occupies, and the position of the
// following record.
func (r *Ring) readRecordAt(off Offset) (Record, bounds, Offset, error) {
	if err := r.bounds.check("read cursor", off); err != nil {
		return Record{}, bounds{}, 0, err
	}

	if uint64(off)+HeaderSize > uint64(r.bounds.end) {
		return Record{}, bounds{}, 0, violation("header at %d crosses the end of the ring", off)
	}

	h := decodeHeader(r.mem[off:])

	if !h.kind.valid() {
		return Record{}, bounds{}, 0, violation("unknown record kind %d at %d", h.kind, off)
	}

	if h.kind == KindGso && h.length < GsoContextSize {
		return Record{}, bounds{}, 0, violation("gso record at %d too short for its context", off)
	}

	payload := int64(off) + int64(h.payloadOffset)

	switch {
	case h.payloadOffset >= HeaderSize:
	case payload == int64(r.bounds.start) && h.payloadOffset < 0:
	default:
		return Record{}, bounds{}, 0, violation("record at %d has payload offset %d", off, h.payloadOffset)
	}

	end := payload + int64(alignUp(h.length))
	if end > int64(r.bounds.end) || !aligned(Offset(payload)) {
		return Record{}, bounds{}, 0, violation("record at %d with length %d overruns the ring", off, h.length)
	}

	rec := Record{
		Kind:          h.kind,
		Offset:        off,
		Length:        h.length,
		PayloadOffset: h.payloadOffset,
		payload:       r.mem[payload : payload+int64(h.length) : payload+int64(h.length)],
	}

	return rec, bounds{start: Offset(payload), end: Offset(end)}, r.bounds.wrap(Offset(end)), nil
}

// Skip consumes the record returned by the last successful Peek.
func (r *Ring) Skip() error {
	if !r.peeked {
		return violation("skip without a preceding peek")
	}

	r.peeked = false

	if r.poison {
		fill(r.mem[r.peekAt:r.peekAt+HeaderSize], PoisonByte)
		fill(r.mem[r.peekBody.start:r.peekBody.end], PoisonByte)
	}

	r.desc.SetRead(r.peekNext)

	return nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// Next returns the next Frame or Gso record, skipping any padding in front
// of it. The returned record still has to be skipped by the caller.
func (r *Ring) Next() (Record, bool, error) {
	for {
		rec, ok, err := r.Peek()
		if err != nil || !ok {
			return rec, ok, err
		}

		if rec.Kind != KindPadding {
			return rec, true, nil
		}

		if err := r.Skip(); err != nil {
			return Record{}, false, err
		}
	}
}

// FrameInfo describes a frame copied out by ReadFrame.
type FrameInfo struct {
	Len    int
	Gso    gso.Context
	HasGso bool
}

// ReadFrame copies the next frame into dst and skips it. When dst is too
// small io.ErrShortBuffer is returned and the frame stays in the ring.
func (r *Ring) ReadFrame(dst []byte) (FrameInfo, bool, error) {
	rec, ok, err := r.Next()
	if err != nil || !ok {
		return FrameInfo{}, ok, err
	}

	frame := rec.Frame()
	if len(dst) < len(frame) {
		r.peeked = false
		return FrameInfo{}, false, io.ErrShortBuffer
	}

	info := FrameInfo{Len: copy(dst, frame)}
	info.Gso, info.HasGso = rec.Gso()

	return info, true, r.Skip()
}

// WriteFrame allocates, fills and commits a plain frame.
func (r *Ring) WriteFrame(frame []byte) error {
	res, err := r.Allocate(len(frame), KindFrame)
	if err != nil {
		return err
	}

	copy(res.Frame(), frame)

	return res.Commit()
}

// WriteSG copies a scatter/gather list into the ring as one record, using a
// Gso record when the list carries a gso context.
func (r *Ring) WriteSG(l *sg.List) error {
	var (
		res *Reservation
		err error
	)

	if ctx, ok := l.Gso(); ok {
		res, err = r.AllocateGso(l.Len(), ctx)
	} else {
		res, err = r.Allocate(l.Len(), KindFrame)
	}

	if err != nil {
		return err
	}

	if _, err := l.CopyAllOut(res.Frame()); err != nil {
		res.Discard()
		return err
	}

	return res.Commit()
}

// HasMore reports whether committed records are waiting to be read.
func (r *Ring) HasMore() bool {
	return r.desc.Read() != r.desc.WriteCommit()
}

// Readable returns the number of committed bytes not yet consumed,
// headers and padding included.
func (r *Ring) Readable() int {
	read := r.desc.Read()
	commit := r.desc.WriteCommit()

	if commit >= read {
		return int(commit - read)
	}

	return int(r.bounds.size() - uint32(read-commit))
}

// Writable returns the number of free bytes. A single record may not be able
// to use all of them since records are never split.
func (r *Ring) Writable() int {
	read := r.desc.Read()
	intent := r.desc.WriteIntent()

	if read > intent {
		return int(read-intent) - Alignment
	}

	return int(r.bounds.size()-uint32(intent-read)) - Alignment
}

type RingStats struct {
	Start         Offset
	End           Offset
	Read          Offset
	WriteIntent   Offset
	WriteCommit   Offset
	Overflows     uint64
	BytesWritten  uint64
	FramesWritten uint64
}

func (r *Ring) Stats() RingStats {
	return RingStats{
		Start:         r.bounds.start,
		End:           r.bounds.end,
		Read:          r.desc.Read(),
		WriteIntent:   r.desc.WriteIntent(),
		WriteCommit:   r.desc.WriteCommit(),
		Overflows:     r.desc.Overflows(),
		BytesWritten:  r.desc.Bytes(),
		FramesWritten: r.desc.Frames(),
	}
}
