package sg

import "sync"

const (
	DefaultSegments = 4

	// BufferSize is the initial size of the backing buffer of a pooled list.
	BufferSize = 2048
)

var lists = sync.Pool{
	New: func() any {
		return &List{
			segs: make([][]byte, 0, DefaultSegments),
			buf:  make([]byte, 0, BufferSize),
		}
	},
}

// Get returns an empty pooled list holding one reference.
func Get() *List {
	l := lists.Get().(*List)
	l.ref.Store(1)
	return l
}

func (l *List) reset() {
	clear(l.segs)
	l.segs = l.segs[:0]
	l.length = 0
	l.User = nil
	l.ClearGso()
	l.buf = l.buf[:0]
}

// Clone copies the frame into a pooled list with its own storage, so it can
// outlive the memory l points at.
func (l *List) Clone() *List {
	c := Get()

	if cap(c.buf) < l.length {
		c.buf = make([]byte, l.length)
	}

	c.buf = c.buf[:l.length]
	l.CopyAllOut(c.buf)

	c.Append(c.buf)
	c.gso, c.hasGso = l.gso, l.hasGso
	c.User = l.User

	return c
}

func (l *List) IncRef(cnt int32) {
	if l.temp {
		return
	}
	l.ref.Add(cnt)
}

// Release drops a reference. The last release returns a pooled list to the
// pool; temporary lists are left alone.
func (l *List) Release() {
	if l.temp {
		return
	}

	if l.ref.Add(-1) == 0 {
		l.reset()
		lists.Put(l)
	}
}
