package gso

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	dstMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, ls...)
	require.NoError(t, err)
	return buf.Bytes()
}

func tcp4Frame(t *testing.T, payload int) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{SrcPort: 1234, DstPort: 80, DataOffset: 5, ACK: true, Window: 1024}
	return serialize(t, eth, ip, tcp, gopacket.Payload(make([]byte, payload)))
}

func udp6Frame(t *testing.T, payload int) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP("fd00::1"),
		DstIP:      net.ParseIP("fd00::2"),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 5353}
	return serialize(t, eth, ip, udp, gopacket.Payload(make([]byte, payload)))
}

func TestFromFrame(t *testing.T) {
	t.Run("derives tcp over ipv4 offsets", func(t *testing.T) {
		r := require.New(t)

		frame := tcp4Frame(t, 4000)

		ctx, err := FromFrame(frame, 1460)
		r.NoError(err)

		r.Equal(TypeIPv4TCP, ctx.Type)
		r.Equal(uint8(14), ctx.OffHdr1)
		r.Equal(uint8(34), ctx.OffHdr2)
		r.Equal(uint8(54), ctx.HdrsTotal)
		r.Equal(ctx.HdrsTotal, ctx.HdrsSeg)
		r.Equal(uint16(1460), ctx.MaxSeg)

		r.Equal(3, ctx.SegmentCount(len(frame)))
	})

	t.Run("derives udp over ipv6 offsets", func(t *testing.T) {
		r := require.New(t)

		ctx, err := FromFrame(udp6Frame(t, 3000), 1400)
		r.NoError(err)

		r.Equal(TypeIPv6UDP, ctx.Type)
		r.Equal(uint8(14), ctx.OffHdr1)
		r.Equal(uint8(54), ctx.OffHdr2)
		r.Equal(uint8(62), ctx.HdrsTotal)
		r.Equal(ctx.OffHdr2, ctx.HdrsSeg)
	})

	t.Run("rejects frames without l4", func(t *testing.T) {
		r := require.New(t)

		eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP}
		arp := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   srcMAC,
			SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{10, 0, 0, 2},
		}

		_, err := FromFrame(serialize(t, eth, arp), 1400)
		r.ErrorIs(err, ErrNotSegmentable)
	})
}

func TestValidate(t *testing.T) {
	good := Context{
		Type:      TypeIPv4TCP,
		HdrsTotal: 54,
		HdrsSeg:   54,
		OffHdr1:   14,
		OffHdr2:   34,
		MaxSeg:    1460,
	}

	t.Run("accepts a well formed context", func(t *testing.T) {
		require.NoError(t, good.Validate(2000))
		require.NoError(t, good.Validate(-1))
	})

	t.Run("rejects malformed contexts", func(t *testing.T) {
		r := require.New(t)

		bad := good
		bad.Type = TypeInvalid
		r.ErrorIs(bad.Validate(-1), ErrInvalid)

		bad = good
		bad.OffHdr2 = 20
		r.ErrorIs(bad.Validate(-1), ErrInvalid)

		bad = good
		bad.HdrsTotal = 40
		r.ErrorIs(bad.Validate(-1), ErrInvalid)

		bad = good
		bad.MaxSeg = 0
		r.ErrorIs(bad.Validate(-1), ErrInvalid)

		r.ErrorIs(good.Validate(54), ErrInvalid)
	})

	t.Run("counts segments", func(t *testing.T) {
		r := require.New(t)

		r.Equal(0, good.SegmentCount(54))
		r.Equal(1, good.SegmentCount(55))
		r.Equal(1, good.SegmentCount(54+1460))
		r.Equal(2, good.SegmentCount(54+1461))
	})
}

func TestVirtioNetHdr(t *testing.T) {
	t.Run("round trips through the wire form", func(t *testing.T) {
		r := require.New(t)

		frame := tcp4Frame(t, 3000)
		ctx, err := FromFrame(frame, 1448)
		r.NoError(err)

		h, err := ctx.VirtioNetHdr()
		r.NoError(err)
		r.Equal(uint8(VirtioNetHdrGsoTCPv4), h.GsoType)
		r.Equal(uint16(34), h.CsumStart)
		r.Equal(uint16(16), h.CsumOffset)

		buf := make([]byte, VirtioNetHdrLen)
		r.NoError(h.Encode(buf))

		var dec VirtioNetHdr
		r.NoError(dec.Decode(buf))
		r.Equal(h, dec)

		back, ok, err := FromVirtioNetHdr(dec, frame)
		r.NoError(err)
		r.True(ok)
		r.Equal(ctx, back)
	})

	t.Run("no gso means no context", func(t *testing.T) {
		r := require.New(t)

		_, ok, err := FromVirtioNetHdr(VirtioNetHdr{}, tcp4Frame(t, 10))
		r.NoError(err)
		r.False(ok)
	})

	t.Run("tunnel types have no virtio form", func(t *testing.T) {
		_, err := Context{Type: TypeIPv4IPv6TCP}.VirtioNetHdr()
		require.ErrorIs(t, err, ErrNoVirtioEquivalent)
	})

	t.Run("short buffers are refused", func(t *testing.T) {
		var h VirtioNetHdr
		require.Error(t, h.Decode(make([]byte, 4)))
	})
}
