package intnetbuf

import "github.com/lab47/intnet/pkg/gso"

// Record is a read-only view of one record in a ring. The slices it hands
// out alias shared memory and are only valid until the record is skipped.
type Record struct {
	Kind          Kind
	Offset        Offset
	Length        uint32
	PayloadOffset int32

	payload []byte
}

// Payload returns the raw payload, which for KindGso starts with the gso
// context.
func (r Record) Payload() []byte {
	return r.payload
}

// Frame returns the Ethernet frame bytes of the record.
func (r Record) Frame() []byte {
	switch r.Kind {
	case KindGso:
		return r.payload[GsoContextSize:]
	case KindFrame:
		return r.payload
	default:
		return nil
	}
}

func (r Record) Gso() (gso.Context, bool) {
	if r.Kind != KindGso {
		return gso.Context{}, false
	}
	return decodeGso(r.payload), true
}
