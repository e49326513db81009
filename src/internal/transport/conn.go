//go:build unix

// Package transport implements a non-blocking stream connection whose write
// queue carries both buffered bytes and zero-copy file transfers.
package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/howmanysmall/wirefile/src/internal/core"
	"github.com/howmanysmall/wirefile/src/internal/reactor"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const readBufferSize = 64 * 1024

// Registry is the reactor's interest set. A *reactor.Loop satisfies it.
type Registry interface {
	AddReader(h reactor.Handler)
	RemoveReader(h reactor.Handler)
	AddWriter(h reactor.Handler)
	RemoveWriter(h reactor.Handler)
}

// Conn is a connected socket driven by a reactor. All methods must be called
// from the reactor goroutine.
type Conn struct {
	sock     fdSocket
	reg      Registry
	queue    *WriteQueue
	zeroCopy core.ZeroCopyPrimitive

	writing       bool
	reading       bool
	disconnecting bool
	closed        bool

	onData  func([]byte)
	onClose func(error)

	readBuf []byte
	log     *logrus.Entry
}

// Option configures a Conn.
type Option func(*Conn)

// WithZeroCopy sets the zero-copy primitive file transfers use. A nil
// primitive sends every file through the buffered path.
func WithZeroCopy(p core.ZeroCopyPrimitive) Option {
	return func(c *Conn) {
		if p == nil {
			p = core.DisabledZeroCopy()
		}

		c.zeroCopy = p
	}
}

// WithOnData sets the callback for received bytes. The slice is only valid
// for the duration of the call.
func WithOnData(fn func([]byte)) Option {
	return func(c *Conn) {
		c.onData = fn
	}
}

// WithOnClose sets the callback run once when the connection closes. The
// reason is nil for an orderly local close.
func WithOnClose(fn func(error)) Option {
	return func(c *Conn) {
		c.onClose = fn
	}
}

// WithLogger sets the log entry.
func WithLogger(entry *logrus.Entry) Option {
	return func(c *Conn) {
		if entry != nil {
			c.log = entry
		}
	}
}

// NewConn takes ownership of the connected socket fd and makes it non-blocking.
func NewConn(fd int, reg Registry, opts ...Option) (*Conn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("failed to set fd %d non-blocking: %w", fd, err)
	}

	c := &Conn{
		sock:     fdSocket(fd),
		reg:      reg,
		queue:    NewWriteQueue(),
		zeroCopy: core.PlatformZeroCopy(),
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.WithField("fd", fd)

	return c, nil
}

// Fd returns the socket descriptor.
func (c *Conn) Fd() int {
	return c.sock.Fd()
}

// Write queues a copy of p behind everything already queued.
func (c *Conn) Write(p []byte) error {
	if c.closed || c.disconnecting {
		return core.ErrConnectionClosed
	}

	if len(p) == 0 {
		return nil
	}

	buf := make([]byte, len(p))
	copy(buf, p)

	c.queue.PushBuffer(buf)
	c.startWriting()

	return nil
}

// WriteFile queues the remaining bytes of f behind everything already
// queued. The file is not closed; the caller closes it once the returned
// completion settles. A file that cannot be measured fails immediately with
// an error matching core.ErrInvalidFile.
func (c *Conn) WriteFile(f core.File) (*core.Completion, error) {
	if c.closed || c.disconnecting {
		return nil, core.ErrConnectionClosed
	}

	t, err := core.NewFileTransfer(f,
		core.WithZeroCopy(c.zeroCopy),
		core.WithLogger(c.log),
	)
	if err != nil {
		return nil, err
	}

	c.queue.PushTransfer(t)
	c.startWriting()

	return t.Completion(), nil
}

// OnWritable drives the queue head until the socket would block or the
// queue is empty.
func (c *Conn) OnWritable() {
	for !c.closed {
		head := c.queue.Head()
		if head == nil {
			c.stopWriting()

			if c.disconnecting {
				c.closeWith(nil)
			}

			return
		}

		switch head.Kind() {
		case ItemBuffer:
			done, err := head.writeBuffer(c.sock)
			if err != nil {
				c.connectionLost(err)
				return
			}

			if !done {
				return
			}

		case ItemFile:
			result, err := head.Transfer().Step(c.sock)
			if err != nil {
				c.connectionLost(err)
				return
			}

			switch result {
			case core.StepBlocked:
				return
			case core.StepFatal:
				c.abortWith(head.Transfer().Completion().Err())
				return
			}
		}

		c.queue.Pop()
	}
}

// OnReadable reads what is available and passes it to the data callback.
func (c *Conn) OnReadable() {
	if c.closed {
		return
	}

	if c.readBuf == nil {
		c.readBuf = make([]byte, readBufferSize)
	}

	for !c.closed {
		n, err := c.sock.Read(c.readBuf)
		if n > 0 {
			if c.onData != nil {
				c.onData(c.readBuf[:n])
			}

			continue
		}

		switch {
		case errors.Is(err, unix.EAGAIN):
			return
		case err != nil:
			c.connectionLost(err)
		default:
			c.connectionLost(io.EOF)
		}

		return
	}
}

// OnError tears the connection down with err.
func (c *Conn) OnError(err error) {
	c.connectionLost(err)
}

// StartReading registers read interest.
func (c *Conn) StartReading() {
	if c.closed || c.reading {
		return
	}

	c.reading = true
	c.reg.AddReader(c)
}

// StopReading removes read interest.
func (c *Conn) StopReading() {
	if !c.reading {
		return
	}

	c.reading = false
	c.reg.RemoveReader(c)
}

// LoseConnection closes the connection once everything queued is written.
func (c *Conn) LoseConnection() {
	if c.closed || c.disconnecting {
		return
	}

	c.disconnecting = true

	if c.queue.Empty() {
		c.closeWith(nil)
	}
}

// Abort closes the connection immediately. Queued transfers settle as aborted.
func (c *Conn) Abort() {
	c.abortWith(core.ErrConnectionClosed)
}

func (c *Conn) abortWith(reason error) {
	if reason == nil {
		reason = core.ErrConnectionClosed
	}

	c.closeWith(reason)
}

func (c *Conn) connectionLost(reason error) {
	if c.closed {
		return
	}

	c.log.WithFields(logrus.Fields{
		"function": "connectionLost",
		"queued":   c.queue.Len(),
		"reason":   reason,
	}).Debug("Connection lost")

	c.closeWith(reason)
}

func (c *Conn) closeWith(reason error) {
	if c.closed {
		return
	}

	c.closed = true

	cause := reason
	if cause == nil {
		cause = core.ErrConnectionClosed
	}

	c.queue.Drain(func(it *Item) {
		if t := it.Transfer(); t != nil {
			t.Abort(cause)
		}
	})

	c.stopWriting()
	c.StopReading()

	if err := unix.Close(c.sock.Fd()); err != nil {
		c.log.WithFields(logrus.Fields{
			"function": "closeWith",
			"error":    err,
		}).Warn("Failed to close socket")
	}

	if c.onClose != nil {
		c.onClose(reason)
	}
}

func (c *Conn) startWriting() {
	if c.writing {
		return
	}

	c.writing = true
	c.reg.AddWriter(c)
}

func (c *Conn) stopWriting() {
	if !c.writing {
		return
	}

	c.writing = false
	c.reg.RemoveWriter(c)
}

// Registered reports whether the connection has write interest.
func (c *Conn) Registered() bool {
	return c.writing
}

// Closed reports whether the connection has closed.
func (c *Conn) Closed() bool {
	return c.closed
}

// QueueLen returns the number of queued items.
func (c *Conn) QueueLen() int {
	return c.queue.Len()
}
