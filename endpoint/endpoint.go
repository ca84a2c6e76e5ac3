// Package endpoint drives one side of an intnet buffer: it transmits frames
// on one ring, receives them from the other, and handles the waiting and
// backpressure the rings themselves leave to the caller.
package endpoint

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lab47/intnet/pkg/gso"
	"github.com/lab47/intnet/pkg/intnetbuf"
	"github.com/lab47/intnet/pkg/queue"
	"github.com/lab47/intnet/pkg/sg"
	"github.com/lab47/lsvd/logger"
	"github.com/mdlayher/ethernet"
	"github.com/pkg/errors"
)

// Role says which side of the buffer an endpoint is. The host writes the
// recv ring and reads the send ring, the guest does the opposite.
type Role int

const (
	Host Role = iota
	Guest
)

func (r Role) String() string {
	switch r {
	case Host:
		return "host"
	case Guest:
		return "guest"
	default:
		return "unknown"
	}
}

const (
	DefaultBacklog      = 256
	DefaultPollInterval = 10 * time.Millisecond

	maxRaceRetries = 8
)

// Frame is a received frame. Data points into the shared buffer and is only
// valid until the receive callback returns.
type Frame struct {
	Data   []byte
	Gso    gso.Context
	HasGso bool
}

type Option func(e *Endpoint)

// WithBacklog sets how many frames are held locally while the transmit ring
// is full. Zero disables the backlog: Transmit then fails with
// intnetbuf.ErrBufferFull.
func WithBacklog(n int) Option {
	return func(e *Endpoint) {
		e.backlogSize = n
	}
}

// WithSignals sets the doorbells. notify is rung after frames are
// transmitted, wait is where Receive listens for the peer. Either may be nil.
func WithSignals(notify, wait Signal) Option {
	return func(e *Endpoint) {
		e.notify = notify
		e.wait = wait
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Endpoint) {
		e.interval = d
	}
}

type Endpoint struct {
	log  logger.Logger
	role Role

	tx *intnetbuf.Ring
	rx *intnetbuf.Ring

	// write puts one list into tx, normally tx.WriteSG.
	write func(l *sg.List) error

	notify Signal
	wait   Signal

	interval    time.Duration
	backlogSize int

	txmu     sync.Mutex
	backlog  *queue.Queue[*sg.List]
	txcharge chan struct{}

	txframes  atomic.Int64
	txbytes   atomic.Int64
	txretries atomic.Int64
	droptx    atomic.Int64

	rxframes atomic.Int64
	rxbytes  atomic.Int64
}

// New attaches an endpoint to buf. When a backlog is configured a goroutine
// flushes it until ctx is done.
func New(ctx context.Context, log logger.Logger, buf *intnetbuf.Buffer, role Role, opts ...Option) *Endpoint {
	e := &Endpoint{
		log:         log,
		role:        role,
		interval:    DefaultPollInterval,
		backlogSize: DefaultBacklog,
	}

	for _, o := range opts {
		o(e)
	}

	if role == Host {
		e.tx, e.rx = buf.Recv, buf.Send
	} else {
		e.tx, e.rx = buf.Send, buf.Recv
	}

	e.write = e.tx.WriteSG

	if e.backlogSize > 0 {
		e.backlog = queue.New[*sg.List](e.backlogSize)
		e.txcharge = make(chan struct{}, 1)

		go e.pollTX(ctx)
	}

	log.Info("endpoint attached",
		"role", role,
		"tx-capacity", e.tx.Capacity(),
		"rx-capacity", e.rx.Capacity(),
		"backlog", e.backlogSize,
	)

	return e
}

func (e *Endpoint) Role() Role {
	return e.role
}

// Transmit copies l into the transmit ring. l is not retained: when the ring
// is full a copy goes to the backlog, and when the backlog is full too the
// frame is dropped and intnetbuf.ErrBufferFull returned. A frame that no
// record in the ring could ever hold fails with intnetbuf.ErrInvalidSize.
func (e *Endpoint) Transmit(ctx context.Context, l *sg.List) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, hasGso := l.Gso()
	if limit := e.tx.MaxFrame(hasGso); l.Len() > limit {
		e.droptx.Add(1)
		return errors.Wrapf(intnetbuf.ErrInvalidSize, "frame of %d bytes, ring takes at most %d", l.Len(), limit)
	}

	e.txmu.Lock()
	defer e.txmu.Unlock()

	e.drainLocked()

	if e.backlog == nil || e.backlog.Empty() {
		err := e.writeLocked(l)
		if err == nil {
			e.ring()
			return nil
		}

		if !errors.Is(err, intnetbuf.ErrBufferFull) {
			return err
		}
	}

	if e.backlog != nil && !e.backlog.Full() {
		e.backlog.Push(l.Clone())
		e.log.Trace("queued frame in backlog", "len", l.Len(), "backlog", e.backlog.Len())
		e.charge()
		return nil
	}

	e.droptx.Add(1)
	e.log.Trace("dropped frame, transmit ring full", "len", l.Len())

	return intnetbuf.ErrBufferFull
}

func (e *Endpoint) TransmitFrame(ctx context.Context, frame []byte) error {
	return e.Transmit(ctx, sg.FromSingleBuffer(frame))
}

func (e *Endpoint) TransmitGso(ctx context.Context, frame []byte, gctx gso.Context) error {
	if err := gctx.Validate(len(frame)); err != nil {
		return err
	}

	return e.Transmit(ctx, sg.FromSingleBufferWithGso(frame, gctx))
}

func (e *Endpoint) TransmitEthernet(ctx context.Context, f *ethernet.Frame) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "marshaling ethernet frame")
	}

	return e.TransmitFrame(ctx, data)
}

// writeLocked writes l as one record, retrying while another writer keeps
// beating us to the write cursor.
func (e *Endpoint) writeLocked(l *sg.List) error {
	for i := 0; ; i++ {
		err := e.write(l)
		switch {
		case err == nil:
			e.txframes.Add(1)
			e.txbytes.Add(int64(l.Len()))

			if e.log.IsTrace() {
				e.traceList("tx", l)
			}

			return nil
		case errors.Is(err, intnetbuf.ErrRaceLost) && i < maxRaceRetries:
			e.txretries.Add(1)
		default:
			return err
		}
	}
}

// drainLocked moves as much of the backlog into the ring as fits and
// returns how many frames it wrote.
func (e *Endpoint) drainLocked() int {
	if e.backlog == nil {
		return 0
	}

	var cnt int

	for {
		l, ok := e.backlog.Front()
		if !ok {
			break
		}

		err := e.writeLocked(l)
		if errors.Is(err, intnetbuf.ErrBufferFull) {
			break
		}

		e.backlog.Pop()
		l.Release()

		if err != nil {
			e.droptx.Add(1)
			e.log.Error("error writing backlogged frame", "error", err)
			continue
		}

		cnt++
	}

	if cnt > 0 {
		e.ring()
	}

	return cnt
}

func (e *Endpoint) drain() int {
	e.txmu.Lock()
	defer e.txmu.Unlock()

	return e.drainLocked()
}

func (e *Endpoint) ring() {
	if e.notify == nil {
		return
	}

	if err := e.notify.Notify(); err != nil {
		e.log.Warn("error notifying peer", "error", err)
	}
}

func (e *Endpoint) charge() {
	select {
	case e.txcharge <- struct{}{}:
	default:
	}
}

func (e *Endpoint) pollTX(ctx context.Context) error {
	tick := time.NewTicker(e.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			e.releaseBacklog()
			return ctx.Err()

		case <-tick.C:
			//ok

		case <-e.txcharge:
			//ok
		}

		if cnt := e.drain(); cnt > 0 {
			e.log.Trace("transmitted backlogged frames", "count", cnt)
		}
	}
}

func (e *Endpoint) releaseBacklog() {
	e.txmu.Lock()
	defer e.txmu.Unlock()

	for {
		l, ok := e.backlog.Pop()
		if !ok {
			return
		}

		e.droptx.Add(1)
		l.Release()
	}
}

// ReceiveAvailable hands every frame currently in the receive ring to fn and
// returns how many it delivered. Errors from fn are logged and the frame is
// consumed anyway. A corrupt ring is returned as an error wrapping
// intnetbuf.ErrProtocolViolation and should end the session.
//
// Only one goroutine may receive at a time.
func (e *Endpoint) ReceiveAvailable(fn func(f Frame) error) (int, error) {
	var cnt int

	for {
		rec, ok, err := e.rx.Next()
		if err != nil {
			return cnt, errors.Wrapf(err, "reading %s rx ring", e.role)
		}

		if !ok {
			return cnt, nil
		}

		f := Frame{Data: rec.Frame()}
		f.Gso, f.HasGso = rec.Gso()

		if e.log.IsTrace() {
			e.traceFrame("rx", f)
		}

		if err := fn(f); err != nil {
			e.log.Error("error handling received frame", "error", err)
		}

		if err := e.rx.Skip(); err != nil {
			return cnt, errors.Wrapf(err, "skipping %s rx record", e.role)
		}

		e.rxframes.Add(1)
		e.rxbytes.Add(int64(len(f.Data)))

		cnt++
	}
}

// Receive delivers frames to fn until ctx is done or the ring turns out to
// be corrupt. Between batches it waits for the peer's signal or the poll
// interval, whichever comes first.
func (e *Endpoint) Receive(ctx context.Context, fn func(f Frame) error) error {
	tick := time.NewTicker(e.interval)
	defer tick.Stop()

	var wake <-chan struct{}
	if e.wait != nil {
		wake = e.wait.Wait()
	}

	for {
		if _, err := e.ReceiveAvailable(fn); err != nil {
			e.log.Error("receive ring is corrupt, stopping", "error", err, "role", e.role)
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
			//ok
		case <-tick.C:
			//ok
		}
	}
}

type Stats struct {
	TxFrames  int64
	TxBytes   int64
	TxRetries int64
	DropTx    int64
	RxFrames  int64
	RxBytes   int64
	Backlog   int
}

func (e *Endpoint) Stats() Stats {
	s := Stats{
		TxFrames:  e.txframes.Load(),
		TxBytes:   e.txbytes.Load(),
		TxRetries: e.txretries.Load(),
		DropTx:    e.droptx.Load(),
		RxFrames:  e.rxframes.Load(),
		RxBytes:   e.rxbytes.Load(),
	}

	if e.backlog != nil {
		s.Backlog = e.backlog.Len()
	}

	return s
}
