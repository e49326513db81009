package core

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSocket collects written bytes. With a positive capacity it accepts at
// most budget bytes before reporting that it would block; refill restores
// the budget as the peer draining the socket would.
type fakeSocket struct {
	buf      bytes.Buffer
	capacity int
	budget   int
	writeErr error
	writes   int
}

func newFakeSocket(capacity int) *fakeSocket {
	return &fakeSocket{capacity: capacity, budget: capacity}
}

func (s *fakeSocket) Fd() int {
	return 1000
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	s.writes++

	if s.writeErr != nil {
		return 0, s.writeErr
	}

	n := s.accept(len(p))
	s.buf.Write(p[:n])

	return n, nil
}

func (s *fakeSocket) accept(n int) int {
	if s.capacity <= 0 {
		return n
	}

	if n > s.budget {
		n = s.budget
	}

	s.budget -= n

	return n
}

func (s *fakeSocket) full() bool {
	return s.capacity > 0 && s.budget == 0
}

func (s *fakeSocket) refill() {
	s.budget = s.capacity
}

// emulatedZeroCopy stands in for sendfile: it reads from the file's own
// position and writes into the fake socket. Once failAt bytes have been moved
// it fails every call with failErr.
type emulatedZeroCopy struct {
	file       *os.File
	sock       *fakeSocket
	maxPerCall int
	failAt     int64
	failErr    error
	sent       int64
	calls      int
}

func (e *emulatedZeroCopy) Sendfile(_, _, count int) (int, error) {
	e.calls++

	if e.failErr != nil && e.sent >= e.failAt {
		return 0, e.failErr
	}

	if e.sock.full() {
		return 0, syscall.EAGAIN
	}

	if e.maxPerCall > 0 && count > e.maxPerCall {
		count = e.maxPerCall
	}

	if e.sock.capacity > 0 && count > e.sock.budget {
		count = e.sock.budget
	}

	buf := make([]byte, count)

	n, err := e.file.Read(buf)
	if n == 0 {
		if err == io.EOF {
			return 0, nil
		}

		return 0, err
	}

	w, _ := e.sock.Write(buf[:n])
	e.sent += int64(w)

	return w, nil
}

func writeTempFile(t *testing.T, content []byte) *os.File {
	t.Helper()

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = f.Close()
	})

	return f
}

// drive steps the transfer until it leaves the blocked state, refilling the
// socket between notifications.
func drive(t *testing.T, ft *FileTransfer, sock *fakeSocket) StepResult {
	t.Helper()

	for i := 0; i < 100000; i++ {
		result, err := ft.Step(sock)
		require.NoError(t, err)

		if result != StepBlocked {
			return result
		}

		sock.refill()
	}

	t.Fatal("transfer did not finish")

	return StepBlocked
}
