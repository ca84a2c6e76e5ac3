// Package gso describes generic segmentation offload metadata carried next to
// oversized frames. The values are opaque to the transport; they tell the
// receiving side how the frame would be cut into MTU sized segments.
package gso

import (
	"fmt"

	"github.com/pkg/errors"
)

type Type uint8

const (
	TypeInvalid Type = iota
	TypeIPv4TCP
	TypeIPv6TCP
	TypeIPv4UDP
	TypeIPv6UDP
	// IPv6 tunneled over IPv4.
	TypeIPv4IPv6TCP
	TypeIPv4IPv6UDP
	typeEnd
)

var typeNames = map[Type]string{
	TypeInvalid:     "invalid",
	TypeIPv4TCP:     "ipv4-tcp",
	TypeIPv6TCP:     "ipv6-tcp",
	TypeIPv4UDP:     "ipv4-udp",
	TypeIPv6UDP:     "ipv6-udp",
	TypeIPv4IPv6TCP: "ipv4-ipv6-tcp",
	TypeIPv4IPv6UDP: "ipv4-ipv6-udp",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("gso-type(%d)", uint8(t))
}

func (t Type) TCP() bool {
	return t == TypeIPv4TCP || t == TypeIPv6TCP || t == TypeIPv4IPv6TCP
}

func (t Type) UDP() bool {
	return t == TypeIPv4UDP || t == TypeIPv6UDP || t == TypeIPv4IPv6UDP
}

const (
	ethHdrLen  = 14
	ipv4HdrLen = 20
	ipv6HdrLen = 40
	tcpHdrLen  = 20
	udpHdrLen  = 8
)

// Context is the segmentation description of one frame. OffHdr1 is the offset
// of the first (outer) IP header, OffHdr2 the offset of the TCP or UDP header.
// HdrsTotal covers every header up to the start of the L4 payload and HdrsSeg
// the part of it that is replicated into each segment.
type Context struct {
	Type      Type
	HdrsTotal uint8
	HdrsSeg   uint8
	OffHdr1   uint8
	OffHdr2   uint8
	MaxSeg    uint16
}

var ErrInvalid = errors.New("invalid gso context")

// Validate checks the context against a frame of frameLen bytes. A negative
// frameLen skips the length checks.
func (c Context) Validate(frameLen int) error {
	if c.Type == TypeInvalid || c.Type >= typeEnd {
		return errors.Wrapf(ErrInvalid, "type %s", c.Type)
	}

	if c.OffHdr1 < ethHdrLen {
		return errors.Wrapf(ErrInvalid, "first header at %d", c.OffHdr1)
	}

	var l3 uint8
	switch c.Type {
	case TypeIPv4TCP, TypeIPv4UDP:
		l3 = ipv4HdrLen
	case TypeIPv6TCP, TypeIPv6UDP:
		l3 = ipv6HdrLen
	default:
		l3 = ipv4HdrLen + ipv6HdrLen
	}

	if int(c.OffHdr2) < int(c.OffHdr1)+int(l3) {
		return errors.Wrapf(ErrInvalid, "l4 header at %d overlaps ip header at %d", c.OffHdr2, c.OffHdr1)
	}

	l4 := udpHdrLen
	if c.Type.TCP() {
		l4 = tcpHdrLen
	}

	if int(c.HdrsTotal) < int(c.OffHdr2)+l4 {
		return errors.Wrapf(ErrInvalid, "headers total %d too small", c.HdrsTotal)
	}

	if c.HdrsSeg > c.HdrsTotal || c.HdrsSeg < c.OffHdr2 {
		return errors.Wrapf(ErrInvalid, "segment headers %d out of range", c.HdrsSeg)
	}

	if c.MaxSeg == 0 {
		return errors.Wrapf(ErrInvalid, "zero max segment size")
	}

	if frameLen >= 0 && frameLen <= int(c.HdrsTotal) {
		return errors.Wrapf(ErrInvalid, "frame of %d bytes has no payload past %d header bytes", frameLen, c.HdrsTotal)
	}

	return nil
}

// SegmentCount returns how many segments a frame of frameLen bytes would be
// cut into.
func (c Context) SegmentCount(frameLen int) int {
	payload := frameLen - int(c.HdrsTotal)
	if payload <= 0 || c.MaxSeg == 0 {
		return 0
	}

	return (payload + int(c.MaxSeg) - 1) / int(c.MaxSeg)
}
