// Package intnetbuf implements the shared memory frame transport used between
// a VM network endpoint and the host side internal network service.
//
// A Buffer is a borrowed byte range holding a small header and two Rings:
// Recv carries frames towards the VM, Send carries frames from it. Each ring
// is a circular area of self describing records written with a two phase
// Allocate/Commit protocol and consumed with Peek/Skip.
package intnetbuf

import (
	"math"
	"unsafe"

	"github.com/pkg/errors"
)

// Area is the [Start, End) data range of one ring.
type Area struct {
	Start Offset
	End   Offset
}

func (a Area) Size() uint32 {
	return uint32(a.End - a.Start)
}

// Layout computes the placement of both ring areas for the requested sizes.
// Sizes are rounded down to Alignment.
func Layout(recvSize, sendSize uint32) (total uint32, recv, send Area, err error) {
	recvSize &^= Alignment - 1
	sendSize &^= Alignment - 1

	if recvSize < MinRingSize || sendSize < MinRingSize {
		return 0, Area{}, Area{}, errors.Wrapf(ErrBadLayout, "ring sizes %d/%d below minimum %d", recvSize, sendSize, MinRingSize)
	}

	recvStart := uint64(BufferHeaderSize)
	recvEnd := recvStart + uint64(recvSize)
	sendStart := (recvEnd + AreaAlignment - 1) &^ (AreaAlignment - 1)
	sendEnd := sendStart + uint64(sendSize)

	if sendEnd > math.MaxInt32 {
		return 0, Area{}, Area{}, errors.Wrapf(ErrBadLayout, "buffer of %d bytes too large", sendEnd)
	}

	recv = Area{Start: Offset(recvStart), End: Offset(recvEnd)}
	send = Area{Start: Offset(sendStart), End: Offset(sendEnd)}

	return uint32(sendEnd), recv, send, nil
}

type options struct {
	poison bool
}

type Option func(o *options)

// WithPoison overwrites consumed records with PoisonByte, to catch readers
// that hold on to record memory after skipping it.
func WithPoison() Option {
	return func(o *options) {
		o.poison = true
	}
}

// Buffer is the shared region and its two rings. The memory is owned by
// whoever mapped it; a Buffer never allocates or frees it.
type Buffer struct {
	mem []byte
	hdr bufAccess

	Recv *Ring
	Send *Ring
}

func checkMem(mem []byte) error {
	if len(mem) < BufferHeaderSize {
		return errors.Wrapf(ErrBadLayout, "region of %d bytes smaller than the header", len(mem))
	}

	// Cursors are updated with 32 and 64 bit atomics in place.
	if uintptr(unsafe.Pointer(&mem[0]))%8 != 0 {
		return errors.Wrapf(ErrBadLayout, "region is not 8 byte aligned")
	}

	return nil
}

// Init formats mem as a new Buffer. mem should be zeroed and is normally the
// freshly created shared mapping.
func Init(mem []byte, recvSize, sendSize uint32, opts ...Option) (*Buffer, error) {
	if err := checkMem(mem); err != nil {
		return nil, err
	}

	total, recv, send, err := Layout(recvSize, sendSize)
	if err != nil {
		return nil, err
	}

	if uint64(len(mem)) < uint64(total) {
		return nil, errors.Wrapf(ErrBadLayout, "region of %d bytes, layout needs %d", len(mem), total)
	}

	mem = mem[:total]
	clear(mem[:BufferHeaderSize])

	hdr := bufAccess{mem}
	hdr.SetSize(total)

	for _, ring := range []struct {
		d descAccess
		a Area
	}{
		{hdr.recv(), recv},
		{hdr.send(), send},
	} {
		ring.d.setBounds(ring.a.Start, ring.a.End)
		ring.d.SetRead(ring.a.Start)
		ring.d.setWriteIntent(ring.a.Start)
		ring.d.SetWriteCommit(ring.a.Start)
	}

	// The magic goes last; a peer attaching early sees an invalid buffer.
	hdr.SetMagic(Magic)

	return newBuffer(mem, opts)
}

// Attach validates and opens a Buffer formatted by Init, usually in the
// other process.
func Attach(mem []byte, opts ...Option) (*Buffer, error) {
	if err := checkMem(mem); err != nil {
		return nil, err
	}

	hdr := bufAccess{mem}

	if m := hdr.Magic(); m != Magic {
		return nil, errors.Wrapf(ErrBadLayout, "bad magic %#x", m)
	}

	size := hdr.Size()
	if uint64(size) > uint64(len(mem)) {
		return nil, errors.Wrapf(ErrBadLayout, "header claims %d bytes, region has %d", size, len(mem))
	}

	mem = mem[:size]
	hdr = bufAccess{mem}

	recv := Area{Start: hdr.recv().Start(), End: hdr.recv().End()}
	send := Area{Start: hdr.send().Start(), End: hdr.send().End()}

	for _, a := range []Area{recv, send} {
		if a.Start < BufferHeaderSize || a.End > Offset(size) || a.End < a.Start ||
			!aligned(a.Start) || !aligned(a.End) || a.Size() < MinRingSize {
			return nil, errors.Wrapf(ErrBadLayout, "ring area [%d, %d) invalid for %d byte buffer", a.Start, a.End, size)
		}
	}

	if recv.End > send.Start {
		return nil, errors.Wrapf(ErrBadLayout, "ring areas overlap")
	}

	return newBuffer(mem, opts)
}

func newBuffer(mem []byte, opts []Option) (*Buffer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	hdr := bufAccess{mem}

	return &Buffer{
		mem:  mem,
		hdr:  hdr,
		Recv: newRing(mem, hdr.recv(), &o),
		Send: newRing(mem, hdr.send(), &o),
	}, nil
}

func (b *Buffer) Size() int {
	return len(b.mem)
}

type Stats struct {
	Size uint32
	Recv RingStats
	Send RingStats
}

func (b *Buffer) Stats() Stats {
	return Stats{
		Size: b.hdr.Size(),
		Recv: b.Recv.Stats(),
		Send: b.Send.Stats(),
	}
}
