//go:build unix

// Package server serves one file to every client that connects and
// receives it on the other side.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/howmanysmall/wirefile/src/internal/core"
	"github.com/howmanysmall/wirefile/src/internal/reactor"
	"github.com/howmanysmall/wirefile/src/internal/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

// Options configures a Server.
type Options struct {
	Listen       string
	Path         string
	ZeroCopy     bool
	MaxConns     int
	Watch        bool
	Banner       []byte
	ChecksumAlgo string
	// ZeroCopyPrimitive overrides the platform sendfile when ZeroCopy is set.
	ZeroCopyPrimitive core.ZeroCopyPrimitive
	Logger            *logrus.Entry
}

// Server accepts TCP connections and sends the file on each, then closes.
type Server struct {
	opts         Options
	loop         *reactor.Loop
	listener     net.Listener
	sem          *semaphore.Weighted
	checksummer  *core.Checksummer
	errorHandler *core.ErrorHandler
	log          *logrus.Entry

	// conns is only touched on the loop goroutine, or after the loop stopped.
	conns map[*transport.Conn]struct{}

	// mu guards checksum and the session times.
	mu       sync.RWMutex
	checksum string

	accepted  atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64
	startTime time.Time
	endTime   time.Time
}

// New creates a server for opts.Path. The file must be a regular file.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	info, err := os.Stat(opts.Path)
	if err != nil {
		return nil, core.NewInvalidFileError("stat", err)
	}

	if !info.Mode().IsRegular() {
		return nil, core.NewInvalidFileError("stat", fmt.Errorf("%s is not a regular file", opts.Path))
	}

	checksummer, err := core.NewChecksummer(opts.ChecksumAlgo)
	if err != nil {
		return nil, core.NewConfigurationError("checksum", err)
	}

	log := opts.Logger.WithField("component", "server")

	loop, err := reactor.New(log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:         opts,
		loop:         loop,
		checksummer:  checksummer,
		errorHandler: core.NewErrorHandler(1000),
		log:          log,
		conns:        make(map[*transport.Conn]struct{}),
	}

	if opts.MaxConns > 0 {
		s.sem = semaphore.NewWeighted(int64(opts.MaxConns))
	}

	return s, nil
}

// Listen binds the listening socket. Serve calls it if needed.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return core.NewNetworkError("listen", err)
	}

	s.listener = ln

	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Serve accepts connections until ctx ends. Connections still sending when
// it returns are aborted.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	s.startTime = time.Now()
	s.endTime = time.Time{}
	s.mu.Unlock()

	if err := s.refreshChecksum(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if s.opts.Watch {
		watcher, err := core.NewFileWatcher(s.opts.Path, 200*time.Millisecond)
		if err != nil {
			return err
		}

		defer func() {
			_ = watcher.Close()
		}()

		if err := watcher.Start(ctx); err != nil {
			return err
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			s.watchLoop(ctx, watcher)
		}()
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		s.acceptLoop(ctx)
	}()

	s.log.WithFields(logrus.Fields{
		"function":  "Serve",
		"addr":      s.listener.Addr().String(),
		"file":      s.opts.Path,
		"zero_copy": s.opts.ZeroCopy,
	}).Info("Serving file")

	runErr := s.loop.Run(ctx)

	cancel()

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.WithFields(logrus.Fields{
			"function": "Serve",
			"error":    err,
		}).Warn("Failed to close listener")
	}

	wg.Wait()

	// The loop has stopped, so the connections are ours to tear down.
	for conn := range s.conns {
		conn.Abort()
	}

	if err := s.loop.Close(); err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "Serve",
			"error":    err,
		}).Warn("Failed to close reactor")
	}

	s.mu.Lock()
	s.endTime = time.Now()
	s.mu.Unlock()

	return runErr
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			s.errorHandler.AddError("accept", err)

			continue
		}

		if s.sem != nil && !s.sem.TryAcquire(1) {
			s.rejected.Add(1)

			s.log.WithFields(logrus.Fields{
				"function": "acceptLoop",
				"remote":   nc.RemoteAddr().String(),
			}).Warn("Connection limit reached, rejecting")

			_ = nc.Close()

			continue
		}

		fd, err := detachFd(nc)
		if err != nil {
			s.errorHandler.AddError("accept", err)
			s.release()

			continue
		}

		s.accepted.Add(1)

		if err := s.loop.Call(func() { s.startConn(fd) }); err != nil {
			_ = unix.Close(fd)
			s.release()

			return
		}
	}
}

// detachFd duplicates the socket descriptor and closes nc, leaving the
// duplicate as the only reference to the connection.
func detachFd(nc net.Conn) (int, error) {
	defer func() {
		_ = nc.Close()
	}()

	sc, ok := nc.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("connection %T does not expose its descriptor", nc)
	}

	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("failed to get raw connection: %w", err)
	}

	fd := -1

	var dupErr error

	if err := rc.Control(func(raw uintptr) {
		fd, dupErr = unix.Dup(int(raw))
	}); err != nil {
		return -1, fmt.Errorf("failed to access descriptor: %w", err)
	}

	if dupErr != nil {
		return -1, fmt.Errorf("failed to duplicate descriptor: %w", dupErr)
	}

	unix.CloseOnExec(fd)

	return fd, nil
}

// startConn runs on the loop goroutine.
func (s *Server) startConn(fd int) {
	log := s.log.WithField("fd", fd)

	f, err := os.Open(s.opts.Path)
	if err != nil {
		s.failed.Add(1)
		s.errorHandler.AddError("open", core.NewInvalidFileError("open", err))
		_ = unix.Close(fd)
		s.release()

		return
	}

	var conn *transport.Conn

	conn, err = transport.NewConn(fd, s.loop,
		transport.WithZeroCopy(s.zeroCopy()),
		transport.WithLogger(log),
		transport.WithOnClose(func(error) {
			delete(s.conns, conn)
			s.release()
		}),
	)
	if err != nil {
		s.failed.Add(1)
		s.errorHandler.AddError("connect", err)
		_ = f.Close()
		_ = unix.Close(fd)
		s.release()

		return
	}

	s.conns[conn] = struct{}{}

	if len(s.opts.Banner) > 0 {
		if err := conn.Write(s.opts.Banner); err != nil {
			s.errorHandler.AddError("banner", err)
		}
	}

	completion, err := conn.WriteFile(f)
	if err != nil {
		s.failed.Add(1)
		s.errorHandler.AddError("transfer", err)
		_ = f.Close()
		conn.Abort()

		return
	}

	completion.OnSettle(func(err error) {
		s.transferSettled(log, f, err)
	})

	conn.LoseConnection()
}

func (s *Server) transferSettled(log *logrus.Entry, f *os.File, err error) {
	sent, _ := f.Seek(0, io.SeekCurrent)

	if cerr := f.Close(); cerr != nil {
		log.WithFields(logrus.Fields{
			"function": "transferSettled",
			"error":    cerr,
		}).Warn("Failed to close file")
	}

	if err != nil {
		s.failed.Add(1)
		s.errorHandler.AddError("transfer", err)

		log.WithFields(logrus.Fields{
			"function": "transferSettled",
			"sent":     sent,
			"error":    err,
		}).Warn("Transfer failed")

		return
	}

	s.completed.Add(1)
	s.bytes.Add(sent)

	log.WithFields(logrus.Fields{
		"function": "transferSettled",
		"sent":     sent,
	}).Debug("Transfer completed")
}

func (s *Server) zeroCopy() core.ZeroCopyPrimitive {
	if !s.opts.ZeroCopy {
		return core.DisabledZeroCopy()
	}

	if s.opts.ZeroCopyPrimitive != nil {
		return s.opts.ZeroCopyPrimitive
	}

	return core.PlatformZeroCopy()
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *Server) watchLoop(ctx context.Context, watcher *core.FileWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-watcher.Events():
			s.log.WithFields(logrus.Fields{
				"function": "watchLoop",
				"change":   ev.Type.String(),
			}).Info("Served file changed")

			s.checksummer.Invalidate(s.opts.Path)

			if err := s.refreshChecksum(); err != nil {
				s.errorHandler.AddError("checksum", err)
			}
		case err := <-watcher.Errors():
			s.errorHandler.AddError("watch", err)
		}
	}
}

func (s *Server) refreshChecksum() error {
	sum, err := s.checksummer.FileChecksum(s.opts.Path)
	if err != nil {
		return core.NewInvalidFileError("checksum", err)
	}

	s.mu.Lock()
	s.checksum = sum
	s.mu.Unlock()

	return nil
}

// Checksum returns the checksum of the served file as last computed.
func (s *Server) Checksum() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.checksum
}

// ChecksumAlgorithm returns the algorithm Checksum uses.
func (s *Server) ChecksumAlgorithm() string {
	return s.checksummer.Algorithm()
}

// Errors returns the collected per-connection errors.
func (s *Server) Errors() *core.ErrorHandler {
	return s.errorHandler
}

// Stats returns a snapshot of the serving counters.
func (s *Server) Stats() core.ServerStats {
	stats := core.ServerStats{
		ConnectionsAccepted: s.accepted.Load(),
		ConnectionsRejected: s.rejected.Load(),
		TransfersCompleted:  s.completed.Load(),
		TransfersFailed:     s.failed.Load(),
		BytesTransferred:    s.bytes.Load(),
	}

	s.mu.RLock()
	stats.StartTime = s.startTime
	stats.EndTime = s.endTime
	s.mu.RUnlock()

	end := stats.EndTime
	if end.IsZero() {
		end = time.Now()
	}

	if !stats.StartTime.IsZero() {
		stats.Duration = end.Sub(stats.StartTime)
	}

	return stats
}
