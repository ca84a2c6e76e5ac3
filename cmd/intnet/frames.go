package main

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/lab47/intnet/pkg/gso"
	"github.com/mdlayher/ethernet"
	"github.com/pkg/errors"
)

// experimental ethertype, IEEE 802 local use
const etherTypeTest ethernet.EtherType = 0x88b5

var (
	testSrcIP = net.IPv4(10, 99, 0, 1)
	testDstIP = net.IPv4(10, 99, 0, 2)
)

func testFrame(src net.HardwareAddr, seq int) *ethernet.Frame {
	payload := make([]byte, 64)
	binary.BigEndian.PutUint64(payload, uint64(seq))

	return &ethernet.Frame{
		Destination: ethernet.Broadcast,
		Source:      src,
		EtherType:   etherTypeTest,
		Payload:     payload,
	}
}

// gsoFrame builds one oversized TCP/IPv4 frame with size bytes of payload and
// the context that would cut it into mss sized segments.
func gsoFrame(src net.HardwareAddr, seq, size int, mss uint16) ([]byte, gso.Context, error) {
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       ethernet.Broadcast,
		EthernetType: layers.EthernetTypeIPv4,
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    testSrcIP,
		DstIP:    testDstIP,
	}

	tcp := &layers.TCP{
		SrcPort:    40000,
		DstPort:    9,
		Seq:        uint32(seq * size),
		DataOffset: 5,
		ACK:        true,
		PSH:        true,
		Window:     65535,
	}

	payload := make([]byte, size)
	binary.BigEndian.PutUint64(payload, uint64(seq))

	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		eth, ip, tcp, gopacket.Payload(payload))
	if err != nil {
		return nil, gso.Context{}, errors.Wrap(err, "serializing tcp frame")
	}

	frame := buf.Bytes()

	gctx, err := gso.FromFrame(frame, mss)
	if err != nil {
		return nil, gso.Context{}, err
	}

	return frame, gctx, nil
}
