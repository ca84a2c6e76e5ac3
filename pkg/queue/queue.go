// Package queue is a bounded single-producer single-consumer queue used to
// hold frames that could not be placed in a shared ring yet.
package queue

import "sync/atomic"

type Queue[V any] struct {
	ring []V

	read, write atomic.Uint32
}

// New returns a queue holding up to size values. One slot of the backing
// array stays empty to tell a full queue from an empty one.
func New[V any](size int) *Queue[V] {
	return &Queue[V]{
		ring: make([]V, size+1),
	}
}

func (q *Queue[V]) next(i uint32) uint32 {
	return (i + 1) % uint32(len(q.ring))
}

func (q *Queue[V]) Pop() (V, bool) {
	var zero V

	rv := q.read.Load()
	wv := q.write.Load()

	if rv == wv {
		return zero, false
	}

	val := q.ring[rv]
	q.ring[rv] = zero
	q.read.Store(q.next(rv))

	return val, true
}

func (q *Queue[V]) Front() (V, bool) {
	rv := q.read.Load()
	wv := q.write.Load()

	if rv == wv {
		var v V
		return v, false
	}

	return q.ring[rv], true
}

func (q *Queue[V]) Push(v V) bool {
	wv := q.write.Load()
	nv := q.next(wv)

	if nv == q.read.Load() {
		return false
	}

	q.ring[wv] = v
	q.write.Store(nv)

	return true
}

func (q *Queue[V]) Empty() bool {
	return q.read.Load() == q.write.Load()
}

func (q *Queue[V]) Full() bool {
	return q.next(q.write.Load()) == q.read.Load()
}

func (q *Queue[V]) Len() int {
	rv := q.read.Load()
	wv := q.write.Load()

	if rv > wv {
		return int(wv + uint32(len(q.ring)) - rv)
	}

	return int(wv - rv)
}

func (q *Queue[V]) Cap() int {
	return len(q.ring) - 1
}
