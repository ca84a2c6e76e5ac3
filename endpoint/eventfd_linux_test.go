package endpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventfd(t *testing.T) {
	t.Run("notify wakes the waiter", func(t *testing.T) {
		r := require.New(t)

		e, err := NewEventfd()
		r.NoError(err)
		defer e.Close()

		r.Greater(e.Fd(), 0)

		r.NoError(e.Notify())
		r.NoError(e.Notify())

		select {
		case <-e.Wait():
		case <-time.After(5 * time.Second):
			r.FailNow("eventfd never fired")
		}
	})

	t.Run("is usable as an endpoint signal", func(t *testing.T) {
		var _ Signal = (*Eventfd)(nil)
		var _ Signal = (*ChanSignal)(nil)
	})
}
