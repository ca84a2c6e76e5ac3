package gso

import (
	"math"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

var ErrNotSegmentable = errors.New("frame is not a tcp or udp over ip frame")

// FromFrame dissects an Ethernet frame and derives the context needed to
// segment it at maxSeg bytes of L4 payload per segment.
func FromFrame(frame []byte, maxSeg uint16) (Context, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)

	var (
		ctx Context
		off int
		ips []gopacket.LayerType
		l4  gopacket.LayerType
	)

	first := -1

loop:
	for _, l := range pkt.Layers() {
		switch lt := l.LayerType(); lt {
		case layers.LayerTypeIPv4, layers.LayerTypeIPv6:
			if first < 0 {
				first = off
			}
			ips = append(ips, lt)
		case layers.LayerTypeTCP, layers.LayerTypeUDP:
			l4 = lt
			if off > math.MaxUint8 {
				return ctx, errors.Wrapf(ErrNotSegmentable, "l4 header at offset %d", off)
			}
			ctx.OffHdr2 = uint8(off)
			off += len(l.LayerContents())
			break loop
		}

		off += len(l.LayerContents())
	}

	if first < 0 || l4 == 0 {
		return Context{}, ErrNotSegmentable
	}

	if off > math.MaxUint8 {
		return Context{}, errors.Wrapf(ErrNotSegmentable, "headers span %d bytes", off)
	}

	ctx.OffHdr1 = uint8(first)
	ctx.HdrsTotal = uint8(off)
	ctx.MaxSeg = maxSeg

	tcp := l4 == layers.LayerTypeTCP

	switch {
	case len(ips) == 1 && ips[0] == layers.LayerTypeIPv4:
		ctx.Type = pick(tcp, TypeIPv4TCP, TypeIPv4UDP)
	case len(ips) == 1 && ips[0] == layers.LayerTypeIPv6:
		ctx.Type = pick(tcp, TypeIPv6TCP, TypeIPv6UDP)
	case len(ips) == 2 && ips[0] == layers.LayerTypeIPv4 && ips[1] == layers.LayerTypeIPv6:
		ctx.Type = pick(tcp, TypeIPv4IPv6TCP, TypeIPv4IPv6UDP)
	default:
		return Context{}, errors.Wrapf(ErrNotSegmentable, "unsupported ip nesting %v", ips)
	}

	// UDP is fragmented at the IP layer, so only the IP headers repeat.
	if tcp {
		ctx.HdrsSeg = ctx.HdrsTotal
	} else {
		ctx.HdrsSeg = ctx.OffHdr2
	}

	return ctx, ctx.Validate(len(frame))
}

func pick(tcp bool, t, u Type) Type {
	if tcp {
		return t
	}
	return u
}
