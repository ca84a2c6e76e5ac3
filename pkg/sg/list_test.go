package sg

import (
	"io"
	"testing"

	"github.com/lab47/intnet/pkg/gso"
	"github.com/stretchr/testify/require"
)

func threeSegments() *List {
	l := Get()
	l.Append([]byte("hello "))
	l.Append([]byte("scatter"))
	l.Append([]byte(" gather"))
	return l
}

func TestList(t *testing.T) {
	t.Run("wraps a single buffer", func(t *testing.T) {
		r := require.New(t)

		l := FromSingleBuffer([]byte("frame"))
		r.True(l.Temporary())
		r.Equal(5, l.Len())
		r.Len(l.Segments(), 1)

		_, ok := l.Gso()
		r.False(ok)

		ctx := gso.Context{Type: gso.TypeIPv4TCP, MaxSeg: 1460}
		lg := FromSingleBufferWithGso([]byte("frame"), ctx)
		got, ok := lg.Gso()
		r.True(ok)
		r.Equal(ctx, got)
	})

	t.Run("copies all segments in order", func(t *testing.T) {
		r := require.New(t)

		l := threeSegments()
		defer l.Release()

		dst := make([]byte, l.Len())
		n, err := l.CopyAllOut(dst)
		r.NoError(err)
		r.Equal(l.Len(), n)
		r.Equal("hello scatter gather", string(dst))

		_, err = l.CopyAllOut(make([]byte, 3))
		r.ErrorIs(err, io.ErrShortBuffer)
	})

	t.Run("copies a window across segments", func(t *testing.T) {
		r := require.New(t)

		l := threeSegments()
		defer l.Release()

		full := "hello scatter gather"

		for _, tc := range []struct{ off, n int }{
			{0, 5},
			{4, 6},
			{6, 7},
			{8, 12},
			{13, 7},
			{0, len(full)},
			{19, 1},
			{20, 0},
		} {
			dst := make([]byte, tc.n)
			r.NoError(l.CopyRangeOut(tc.off, tc.n, dst))
			r.Equal(full[tc.off:tc.off+tc.n], string(dst), "window %d+%d", tc.off, tc.n)
		}
	})

	t.Run("refuses windows past the end", func(t *testing.T) {
		r := require.New(t)

		l := threeSegments()
		defer l.Release()

		r.ErrorIs(l.CopyRangeOut(15, 6, make([]byte, 6)), ErrRange)
		r.ErrorIs(l.CopyRangeOut(-1, 2, make([]byte, 2)), ErrRange)
		r.ErrorIs(l.CopyRangeOut(0, 4, make([]byte, 2)), io.ErrShortBuffer)
	})

	t.Run("skips empty segments", func(t *testing.T) {
		r := require.New(t)

		l := Get()
		defer l.Release()

		l.Append(nil)
		l.Append([]byte("ab"))
		l.Append([]byte{})
		l.Append([]byte("cd"))

		dst := make([]byte, 2)
		r.NoError(l.CopyRangeOut(1, 2, dst))
		r.Equal("bc", string(dst))
	})
}

func TestPool(t *testing.T) {
	t.Run("clone owns its bytes", func(t *testing.T) {
		r := require.New(t)

		src := []byte("original")
		l := FromSingleBufferWithGso(src, gso.Context{Type: gso.TypeIPv6UDP})

		c := l.Clone()
		defer c.Release()

		copy(src, "mutated!")

		dst := make([]byte, c.Len())
		_, err := c.CopyAllOut(dst)
		r.NoError(err)
		r.Equal("original", string(dst))

		_, ok := c.Gso()
		r.True(ok)
		r.False(c.Temporary())
	})

	t.Run("refcounts pooled lists", func(t *testing.T) {
		r := require.New(t)

		l := threeSegments()
		l.IncRef(1)

		l.Release()
		r.Equal(int32(1), l.ref.Load())
		r.Equal(20, l.Len())

		l.Release()
		r.Equal(0, l.Len())
	})

	t.Run("temporary lists ignore refcounts", func(t *testing.T) {
		l := FromSingleBuffer([]byte("x"))
		l.IncRef(3)
		l.Release()
		require.Equal(t, 1, l.Len())
	})
}
