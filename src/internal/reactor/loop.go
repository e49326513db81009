//go:build unix

// Package reactor provides a single-threaded poll(2) event loop. Handler
// callbacks and functions passed to Call all run on the goroutine that
// called Run.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Errors returned by the loop.
var (
	ErrClosed  = errors.New("reactor closed")
	ErrRunning = errors.New("reactor already running")
	ErrHangup  = errors.New("peer hung up")
)

// Handler receives readiness notifications for one file descriptor.
type Handler interface {
	Fd() int
	OnReadable()
	OnWritable()
	OnError(err error)
}

// Loop is a poll-based reactor.
type Loop struct {
	mu      sync.Mutex
	calls   []func()
	readers map[int]Handler
	writers map[int]Handler
	running bool
	stopped bool
	closed  bool

	wakeR int
	wakeW int

	pollfds []unix.PollFd
	log     *logrus.Entry
}

// New creates a loop and its wakeup pipe.
func New(log *logrus.Entry) (*Loop, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("failed to create wakeup pipe: %w", err)
	}

	for _, fd := range p {
		unix.CloseOnExec(fd)

		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])

			return nil, fmt.Errorf("failed to set wakeup pipe non-blocking: %w", err)
		}
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Loop{
		readers: make(map[int]Handler),
		writers: make(map[int]Handler),
		wakeR:   p[0],
		wakeW:   p[1],
		log:     log.WithField("component", "reactor"),
	}, nil
}

// AddReader starts delivering OnReadable for h.
func (l *Loop) AddReader(h Handler) {
	l.mu.Lock()
	l.readers[h.Fd()] = h
	l.mu.Unlock()
}

// RemoveReader stops delivering OnReadable for h.
func (l *Loop) RemoveReader(h Handler) {
	l.mu.Lock()
	delete(l.readers, h.Fd())
	l.mu.Unlock()
}

// AddWriter starts delivering OnWritable for h.
func (l *Loop) AddWriter(h Handler) {
	l.mu.Lock()
	l.writers[h.Fd()] = h
	l.mu.Unlock()
}

// RemoveWriter stops delivering OnWritable for h.
func (l *Loop) RemoveWriter(h Handler) {
	l.mu.Lock()
	delete(l.writers, h.Fd())
	l.mu.Unlock()
}

// Readers returns the handlers with read interest, ordered by descriptor.
func (l *Loop) Readers() []Handler {
	l.mu.Lock()
	defer l.mu.Unlock()

	return sortedHandlers(l.readers)
}

// Writers returns the handlers with write interest, ordered by descriptor.
func (l *Loop) Writers() []Handler {
	l.mu.Lock()
	defer l.mu.Unlock()

	return sortedHandlers(l.writers)
}

func sortedHandlers(m map[int]Handler) []Handler {
	out := make([]Handler, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Fd() < out[j].Fd() })

	return out
}

// Call schedules fn to run on the loop goroutine. It is safe to call from
// any goroutine.
func (l *Loop) Call(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}

	l.calls = append(l.calls, fn)
	l.mu.Unlock()

	l.wake()

	return nil
}

// CallLater schedules fn to run on the loop goroutine after d. The returned
// timer may be stopped to cancel the call.
func (l *Loop) CallLater(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		if err := l.Call(fn); err != nil {
			l.log.WithFields(logrus.Fields{
				"function": "CallLater",
				"error":    err,
			}).Debug("Dropped delayed call")
		}
	})
}

func (l *Loop) wake() {
	// A full pipe already guarantees a wakeup.
	_, _ = unix.Write(l.wakeW, []byte{0})
}

func (l *Loop) drainWake() {
	var buf [64]byte

	for {
		n, err := unix.Read(l.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Stop makes Run return after the current iteration. Safe from any goroutine.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	l.wake()
}

// Run dispatches events until Stop is called or ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}

	if l.running {
		l.mu.Unlock()
		return ErrRunning
	}

	l.running = true
	l.stopped = false
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	stopWatch := context.AfterFunc(ctx, l.Stop)
	defer stopWatch()

	l.log.WithField("function", "Run").Debug("Reactor started")

	for {
		if l.runCalls() {
			break
		}

		if err := l.pollOnce(); err != nil {
			return err
		}
	}

	l.log.WithField("function", "Run").Debug("Reactor stopped")

	return nil
}

// runCalls runs the pending calls and reports whether the loop should stop.
func (l *Loop) runCalls() bool {
	l.mu.Lock()
	calls := l.calls
	l.calls = nil
	l.mu.Unlock()

	for _, fn := range calls {
		fn()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.stopped
}

func (l *Loop) pollOnce() error {
	l.mu.Lock()

	l.pollfds = append(l.pollfds[:0], unix.PollFd{Fd: int32(l.wakeR), Events: unix.POLLIN})

	interest := make(map[int]int16, len(l.readers)+len(l.writers))
	for fd := range l.readers {
		interest[fd] |= unix.POLLIN
	}

	for fd := range l.writers {
		interest[fd] |= unix.POLLOUT
	}

	for fd, events := range interest {
		l.pollfds = append(l.pollfds, unix.PollFd{Fd: int32(fd), Events: events})
	}

	timeout := -1
	if len(l.calls) > 0 || l.stopped {
		timeout = 0
	}

	l.mu.Unlock()

	n, err := unix.Poll(l.pollfds, timeout)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}

		return fmt.Errorf("poll failed: %w", err)
	}

	if n == 0 {
		return nil
	}

	for _, pfd := range l.pollfds {
		if pfd.Revents == 0 {
			continue
		}

		if int(pfd.Fd) == l.wakeR {
			l.drainWake()
			continue
		}

		l.dispatch(int(pfd.Fd), pfd.Revents)
	}

	return nil
}

// dispatch looks handlers up again for each callback because an earlier
// callback may have removed them.
func (l *Loop) dispatch(fd int, revents int16) {
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		if h := l.handlerFor(fd); h != nil {
			h.OnError(fmt.Errorf("poll error on fd %d (revents %#x)", fd, revents))
		}

		return
	}

	if revents&(unix.POLLIN|unix.POLLHUP) != 0 {
		if h := l.reader(fd); h != nil {
			h.OnReadable()
		}
	}

	if revents&unix.POLLOUT != 0 {
		if h := l.writer(fd); h != nil {
			h.OnWritable()
		}
	}

	if revents&unix.POLLHUP != 0 && revents&unix.POLLIN == 0 {
		if h := l.handlerFor(fd); h != nil && l.reader(fd) == nil {
			h.OnError(ErrHangup)
		}
	}
}

func (l *Loop) reader(fd int) Handler {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.readers[fd]
}

func (l *Loop) writer(fd int) Handler {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.writers[fd]
}

func (l *Loop) handlerFor(fd int) Handler {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.readers[fd]; ok {
		return h
	}

	return l.writers[fd]
}

// Close releases the wakeup pipe. Calls scheduled after Close fail with
// ErrClosed. Registered handlers are not closed.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}

	l.closed = true
	l.stopped = true
	l.mu.Unlock()

	return errors.Join(unix.Close(l.wakeR), unix.Close(l.wakeW))
}
