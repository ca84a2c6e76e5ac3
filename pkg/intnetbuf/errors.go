package intnetbuf

import "github.com/pkg/errors"

var (
	// ErrBufferFull is returned when no placement fits. Ring state is left
	// untouched apart from the overflow counter.
	ErrBufferFull = errors.New("ring buffer full")

	// ErrRaceLost means another allocator moved the write-intent cursor
	// between our read and our compare-and-swap. Retry the allocation.
	ErrRaceLost = errors.New("lost write-intent race")

	// ErrProtocolViolation means the shared memory is corrupt or the peers
	// are out of sync. The connection should be torn down.
	ErrProtocolViolation = errors.New("ring protocol violation")

	ErrReservationOpen = errors.New("a reservation is already open on this ring")
	ErrInvalidSize     = errors.New("invalid frame size")
	ErrBadLayout       = errors.New("bad shared buffer layout")
)

func violation(format string, args ...any) error {
	return errors.Wrapf(ErrProtocolViolation, format, args...)
}
