package endpoint

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/lab47/intnet/pkg/sg"
)

func (e *Endpoint) traceList(dir string, l *sg.List) {
	var data []byte

	if segs := l.Segments(); len(segs) == 1 {
		data = segs[0]
	} else {
		data = make([]byte, l.Len())
		l.CopyAllOut(data)
	}

	f := Frame{Data: data}
	f.Gso, f.HasGso = l.Gso()

	e.traceFrame(dir, f)
}

func (e *Endpoint) traceFrame(dir string, f Frame) {
	pkt := gopacket.NewPacket(f.Data, layers.LayerTypeEthernet, gopacket.NoCopy)

	e.log.Trace("frame", "dir", dir, "role", e.role, "len", len(f.Data), "packet", pkt.String())

	if !f.HasGso {
		return
	}

	e.log.Trace("frame gso context", "dir", dir, "segments", f.Gso.SegmentCount(len(f.Data)), "gso", spew.Sdump(f.Gso))

	if h, err := f.Gso.VirtioNetHdr(); err == nil {
		e.log.Trace("frame virtio header", "dir", dir, "gso-type", h.GsoType, "hdr-len", h.HdrLen, "gso-size", h.GsoSize)
	}
}
