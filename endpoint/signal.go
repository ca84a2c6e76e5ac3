package endpoint

// Signal is a doorbell between the two sides of a buffer. The writer of a
// ring calls Notify after publishing records, the reader waits on the
// channel returned by Wait.
//
// Signals are only hints. Readers also poll on a ticker, so a lost
// notification delays frames but never loses them.
type Signal interface {
	Notify() error
	Wait() <-chan struct{}
}

// ChanSignal is a Signal for two endpoints living in the same process.
type ChanSignal struct {
	ch chan struct{}
}

func NewChanSignal() *ChanSignal {
	return &ChanSignal{ch: make(chan struct{}, 1)}
}

func (s *ChanSignal) Notify() error {
	select {
	case s.ch <- struct{}{}:
	default:
	}

	return nil
}

func (s *ChanSignal) Wait() <-chan struct{} {
	return s.ch
}
