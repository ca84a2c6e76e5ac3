package endpoint

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var kickBuf = make([]byte, 8)

func init() {
	binary.NativeEndian.PutUint64(kickBuf, 1)
}

// Eventfd is a Signal backed by eventfd(2), so the descriptor can be handed
// to another process alongside the shared buffer.
type Eventfd struct {
	fd int
	f  *os.File

	once sync.Once
	ch   chan struct{}
}

func NewEventfd() (*Eventfd, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, errors.Wrap(err, "creating eventfd")
	}

	return newEventfd(fd), nil
}

// EventfdFromFd wraps a descriptor received from the peer. The descriptor
// must be non-blocking.
func EventfdFromFd(fd int) *Eventfd {
	return newEventfd(fd)
}

func newEventfd(fd int) *Eventfd {
	return &Eventfd{
		fd: fd,
		f:  os.NewFile(uintptr(fd), "eventfd"),
		ch: make(chan struct{}, 1),
	}
}

func (e *Eventfd) Fd() int {
	return e.fd
}

func (e *Eventfd) Notify() error {
	_, err := unix.Write(e.fd, kickBuf)
	if err == unix.EAGAIN {
		// counter saturated, the reader has plenty to wake up for
		return nil
	}

	return errors.Wrap(err, "writing eventfd")
}

func (e *Eventfd) Wait() <-chan struct{} {
	e.once.Do(func() {
		go e.watch()
	})

	return e.ch
}

func (e *Eventfd) watch() {
	buf := make([]byte, 8)

	for {
		_, err := e.f.Read(buf)
		if err != nil {
			return
		}

		select {
		case e.ch <- struct{}{}:
		default:
		}
	}
}

func (e *Eventfd) Close() error {
	return e.f.Close()
}
