package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	t.Run("supports push/empty/pop", func(t *testing.T) {
		r := require.New(t)

		q := New[int](10)
		r.True(q.Empty())
		r.Equal(10, q.Cap())

		r.True(q.Push(1))
		r.False(q.Empty())

		v, ok := q.Front()
		r.True(ok)
		r.Equal(1, v)

		v, ok = q.Pop()
		r.True(ok)

		r.Equal(1, v)
		r.True(q.Empty())

		r.True(q.Push(2))
		r.False(q.Empty())

		r.Equal(1, q.Len())
	})

	t.Run("can fill up", func(t *testing.T) {
		r := require.New(t)

		q := New[int](2)
		r.True(q.Empty())
		r.False(q.Full())

		r.True(q.Push(1))
		r.False(q.Empty())
		r.False(q.Full())

		r.True(q.Push(2))
		r.True(q.Full())
		r.False(q.Push(3))
	})

	t.Run("loops around the ring", func(t *testing.T) {
		r := require.New(t)

		q := New[int](4)

		r.True(q.Push(1))
		r.True(q.Push(2))
		r.True(q.Push(3))
		r.True(q.Push(4))

		_, ok := q.Pop()
		r.True(ok)

		_, ok = q.Pop()
		r.True(ok)

		r.True(q.Push(5))
		r.True(q.Push(6))
		r.True(q.Full())
		r.Equal(4, q.Len())

		r.Equal(uint32(2), q.read.Load())
		r.Equal(uint32(1), q.write.Load())

		for _, want := range []int{3, 4, 5, 6} {
			v, ok := q.Pop()
			r.True(ok)
			r.Equal(want, v)
		}

		r.Equal(uint32(1), q.read.Load())
		r.True(q.Empty())
	})

	t.Run("pop drops references", func(t *testing.T) {
		r := require.New(t)

		q := New[*int](2)
		x := 7
		r.True(q.Push(&x))

		_, ok := q.Pop()
		r.True(ok)
		r.Nil(q.ring[0])
	})
}
