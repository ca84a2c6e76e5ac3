package intnetbuf

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/lab47/intnet/pkg/gso"
)

// Everything that gives meaning to bytes in the shared region lives in this
// file. Both peers run on the same host, so fields use the native byte order
// like the vring accessors do.

const (
	Magic = 0x494e5442

	// Alignment is the granularity of every record start and of every record
	// footprint. It equals HeaderSize so any unused tail of a reservation can
	// always hold a Padding header.
	Alignment = 16

	HeaderSize     = 16
	GsoContextSize = 8

	// AreaAlignment aligns the start of each ring data area.
	AreaAlignment = 64

	BufferHeaderSize = 128
	RingDescSize     = 48

	recvDescOff = 8
	sendDescOff = recvDescOff + RingDescSize

	// MinRingSize is the smallest data area that can hold a header and a
	// minimal payload while keeping read == write unambiguous.
	MinRingSize = 4 * Alignment

	MaxFrameSize = 1 << 24
)

type Kind uint8

const (
	KindFrame   Kind = 1
	KindGso     Kind = 2
	KindPadding Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "frame"
	case KindGso:
		return "gso"
	case KindPadding:
		return "padding"
	default:
		return "unknown"
	}
}

func (k Kind) valid() bool {
	return k >= KindFrame && k <= KindPadding
}

var ne = binary.NativeEndian

// header is the decoded form of a record header.
//
//	+0  u8  kind
//	+1  3 reserved bytes
//	+4  u32 length of the payload (including the gso context for KindGso)
//	+8  i32 payload offset relative to the header start
//	+12 u32 reserved
type header struct {
	kind          Kind
	length        uint32
	payloadOffset int32
}

func encodeHeader(b []byte, h header) {
	_ = b[HeaderSize-1]
	b[0] = byte(h.kind)
	b[1], b[2], b[3] = 0, 0, 0
	ne.PutUint32(b[4:], h.length)
	ne.PutUint32(b[8:], uint32(h.payloadOffset))
	ne.PutUint32(b[12:], 0)
}

func decodeHeader(b []byte) header {
	_ = b[HeaderSize-1]
	return header{
		kind:          Kind(b[0]),
		length:        ne.Uint32(b[4:]),
		payloadOffset: int32(ne.Uint32(b[8:])),
	}
}

//	+0 u8  type
//	+1 u8  hdrs total
//	+2 u8  hdrs seg
//	+3 u8  off hdr1
//	+4 u8  off hdr2
//	+5 u8  reserved
//	+6 u16 max segment size
func encodeGso(b []byte, c gso.Context) {
	_ = b[GsoContextSize-1]
	b[0] = byte(c.Type)
	b[1] = c.HdrsTotal
	b[2] = c.HdrsSeg
	b[3] = c.OffHdr1
	b[4] = c.OffHdr2
	b[5] = 0
	ne.PutUint16(b[6:], c.MaxSeg)
}

func decodeGso(b []byte) gso.Context {
	_ = b[GsoContextSize-1]
	return gso.Context{
		Type:      gso.Type(b[0]),
		HdrsTotal: b[1],
		HdrsSeg:   b[2],
		OffHdr1:   b[3],
		OffHdr2:   b[4],
		MaxSeg:    ne.Uint16(b[6:]),
	}
}

// Ring descriptor layout.
const (
	descStart       = 0
	descEnd         = 4
	descRead        = 8
	descWriteIntent = 12
	descWriteCommit = 16
	descOverflows   = 24
	descBytes       = 32
	descFrames      = 40
)

// descAccess reads and writes one ring descriptor in place. Cursor and
// counter fields are only touched atomically since the peer may be running
// concurrently in another process.
type descAccess struct {
	data []byte
}

func (d descAccess) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&d.data[off]))
}

func (d descAccess) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&d.data[off]))
}

func (d descAccess) Start() Offset { return Offset(atomic.LoadUint32(d.u32(descStart))) }
func (d descAccess) End() Offset   { return Offset(atomic.LoadUint32(d.u32(descEnd))) }

func (d descAccess) setBounds(start, end Offset) {
	atomic.StoreUint32(d.u32(descStart), uint32(start))
	atomic.StoreUint32(d.u32(descEnd), uint32(end))
}

func (d descAccess) Read() Offset {
	return Offset(atomic.LoadUint32(d.u32(descRead)))
}

func (d descAccess) SetRead(o Offset) {
	atomic.StoreUint32(d.u32(descRead), uint32(o))
}

func (d descAccess) WriteIntent() Offset {
	return Offset(atomic.LoadUint32(d.u32(descWriteIntent)))
}

func (d descAccess) CASWriteIntent(old, new Offset) bool {
	return atomic.CompareAndSwapUint32(d.u32(descWriteIntent), uint32(old), uint32(new))
}

func (d descAccess) setWriteIntent(o Offset) {
	atomic.StoreUint32(d.u32(descWriteIntent), uint32(o))
}

func (d descAccess) WriteCommit() Offset {
	return Offset(atomic.LoadUint32(d.u32(descWriteCommit)))
}

func (d descAccess) SetWriteCommit(o Offset) {
	atomic.StoreUint32(d.u32(descWriteCommit), uint32(o))
}

func (d descAccess) Overflows() uint64 { return atomic.LoadUint64(d.u64(descOverflows)) }
func (d descAccess) Bytes() uint64     { return atomic.LoadUint64(d.u64(descBytes)) }
func (d descAccess) Frames() uint64    { return atomic.LoadUint64(d.u64(descFrames)) }

func (d descAccess) addOverflow() { atomic.AddUint64(d.u64(descOverflows), 1) }

func (d descAccess) addWritten(bytes uint64) {
	atomic.AddUint64(d.u64(descBytes), bytes)
	atomic.AddUint64(d.u64(descFrames), 1)
}

// Buffer header layout.
const (
	bufMagic = 0
	bufSize  = 4
)

type bufAccess struct {
	data []byte
}

func (b bufAccess) Magic() uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b.data[bufMagic])))
}

func (b bufAccess) SetMagic(v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b.data[bufMagic])), v)
}

func (b bufAccess) Size() uint32 {
	return ne.Uint32(b.data[bufSize:])
}

func (b bufAccess) SetSize(v uint32) {
	ne.PutUint32(b.data[bufSize:], v)
}

func (b bufAccess) recv() descAccess {
	return descAccess{b.data[recvDescOff : recvDescOff+RingDescSize]}
}

func (b bufAccess) send() descAccess {
	return descAccess{b.data[sendDescOff : sendDescOff+RingDescSize]}
}
