package gso

import (
	"io"
	"unsafe"

	"github.com/pkg/errors"
)

// Values for VirtioNetHdr, from include/uapi/linux/virtio_net.h.
const (
	VirtioNetHdrFNeedsCsum = 1

	VirtioNetHdrGsoNone  = 0
	VirtioNetHdrGsoTCPv4 = 1
	VirtioNetHdrGsoUDP   = 3
	VirtioNetHdrGsoTCPv6 = 4
	VirtioNetHdrGsoECN   = 0x80
)

// VirtioNetHdr is defined in the kernel in include/uapi/linux/virtio_net.h. The
// kernel symbol is virtio_net_hdr.
type VirtioNetHdr struct {
	Flags      uint8
	GsoType    uint8
	HdrLen     uint16
	GsoSize    uint16
	CsumStart  uint16
	CsumOffset uint16
}

// VirtioNetHdrLen is the length in bytes of VirtioNetHdr. This matches the
// shape of the C ABI for its kernel counterpart -- sizeof(virtio_net_hdr).
const VirtioNetHdrLen = int(unsafe.Sizeof(VirtioNetHdr{}))

func (v *VirtioNetHdr) Decode(b []byte) error {
	if len(b) < VirtioNetHdrLen {
		return io.ErrShortBuffer
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(v)), VirtioNetHdrLen), b[:VirtioNetHdrLen])
	return nil
}

func (v *VirtioNetHdr) Encode(b []byte) error {
	if len(b) < VirtioNetHdrLen {
		return io.ErrShortBuffer
	}
	copy(b[:VirtioNetHdrLen], unsafe.Slice((*byte)(unsafe.Pointer(v)), VirtioNetHdrLen))
	return nil
}

var ErrNoVirtioEquivalent = errors.New("gso type has no virtio_net_hdr equivalent")

// VirtioNetHdr translates the context into the header a tap or vhost device
// expects in front of the frame.
func (c Context) VirtioNetHdr() (VirtioNetHdr, error) {
	var h VirtioNetHdr

	switch c.Type {
	case TypeIPv4TCP:
		h.GsoType = VirtioNetHdrGsoTCPv4
		h.CsumOffset = 16
	case TypeIPv6TCP:
		h.GsoType = VirtioNetHdrGsoTCPv6
		h.CsumOffset = 16
	case TypeIPv4UDP, TypeIPv6UDP:
		h.GsoType = VirtioNetHdrGsoUDP
		h.CsumOffset = 6
	default:
		return h, errors.Wrapf(ErrNoVirtioEquivalent, "type %s", c.Type)
	}

	h.Flags = VirtioNetHdrFNeedsCsum
	h.HdrLen = uint16(c.HdrsTotal)
	h.GsoSize = c.MaxSeg
	h.CsumStart = uint16(c.OffHdr2)

	return h, nil
}

// FromVirtioNetHdr builds a context for frame from a device supplied header.
// ok is false when the header carries no segmentation request.
func FromVirtioNetHdr(h VirtioNetHdr, frame []byte) (ctx Context, ok bool, err error) {
	gt := h.GsoType &^ VirtioNetHdrGsoECN
	if gt == VirtioNetHdrGsoNone {
		return Context{}, false, nil
	}

	ctx, err = FromFrame(frame, h.GsoSize)
	if err != nil {
		return Context{}, false, err
	}

	var match bool
	switch gt {
	case VirtioNetHdrGsoTCPv4:
		match = ctx.Type == TypeIPv4TCP
	case VirtioNetHdrGsoTCPv6:
		match = ctx.Type == TypeIPv6TCP
	case VirtioNetHdrGsoUDP:
		match = ctx.Type == TypeIPv4UDP || ctx.Type == TypeIPv6UDP
	}

	if !match {
		return Context{}, false, errors.Wrapf(ErrInvalid, "virtio gso type %d does not match frame (%s)", gt, ctx.Type)
	}

	return ctx, true, nil
}
