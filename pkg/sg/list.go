// Package sg provides scatter/gather views over frames made of several
// discontiguous byte segments.
package sg

import (
	"io"
	"sync/atomic"

	"github.com/lab47/intnet/pkg/gso"
	"github.com/pkg/errors"
)

var ErrRange = errors.New("range outside of scatter/gather list")

// List is a logical frame assembled from Segments in order. Temporary lists
// wrap caller owned memory and ignore reference counting; pooled lists come
// from Get and go back to the pool on their last Release.
type List struct {
	segs   [][]byte
	length int

	// User is free for the owner of the list.
	User any

	gso    gso.Context
	hasGso bool

	temp bool
	ref  atomic.Int32

	one [1][]byte
	buf []byte
}

// FromSingleBuffer wraps b as a one segment temporary list.
func FromSingleBuffer(b []byte) *List {
	l := &List{temp: true, length: len(b)}
	l.one[0] = b
	l.segs = l.one[:]
	return l
}

// FromSingleBufferWithGso is FromSingleBuffer for a frame that carries gso
// metadata.
func FromSingleBufferWithGso(b []byte, ctx gso.Context) *List {
	l := FromSingleBuffer(b)
	l.SetGso(ctx)
	return l
}

func (l *List) Len() int {
	return l.length
}

func (l *List) Segments() [][]byte {
	return l.segs
}

func (l *List) Temporary() bool {
	return l.temp
}

func (l *List) Gso() (gso.Context, bool) {
	return l.gso, l.hasGso
}

func (l *List) SetGso(ctx gso.Context) {
	l.gso = ctx
	l.hasGso = true
}

func (l *List) ClearGso() {
	l.gso = gso.Context{}
	l.hasGso = false
}

// Append adds b as the next segment. The list references b, it does not copy.
func (l *List) Append(b []byte) {
	l.segs = append(l.segs, b)
	l.length += len(b)
}

// CopyAllOut copies the whole frame into dst.
func (l *List) CopyAllOut(dst []byte) (int, error) {
	if len(dst) < l.length {
		return 0, io.ErrShortBuffer
	}

	n := 0
	for _, s := range l.segs {
		n += copy(dst[n:], s)
	}

	return n, nil
}

// CopyRangeOut copies n bytes of the frame starting at off into dst, walking
// only the segments that overlap the window.
func (l *List) CopyRangeOut(off, n int, dst []byte) error {
	if off < 0 || n < 0 || off > l.length || n > l.length-off {
		return errors.Wrapf(ErrRange, "window [%d, %d) in %d bytes", off, off+n, l.length)
	}

	if len(dst) < n {
		return io.ErrShortBuffer
	}

	if n == 0 {
		return nil
	}

	i := 0
	for off >= len(l.segs[i]) {
		off -= len(l.segs[i])
		i++
	}

	copied := copy(dst[:n], l.segs[i][off:])

	for copied < n {
		i++
		copied += copy(dst[copied:n], l.segs[i])
	}

	return nil
}
