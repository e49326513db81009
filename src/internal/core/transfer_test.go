package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSpanMeasuresRemaining(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		size      int
		position  int64
		wantTotal int64
	}{
		{name: "from start", size: 100, position: 0, wantTotal: 100},
		{name: "from middle", size: 100, position: 30, wantTotal: 70},
		{name: "at end", size: 100, position: 100, wantTotal: 0},
		{name: "past end", size: 100, position: 250, wantTotal: 0},
		{name: "empty file", size: 0, position: 0, wantTotal: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := writeTempFile(t, bytes.Repeat([]byte("a"), tt.size))

			_, err := f.Seek(tt.position, io.SeekStart)
			require.NoError(t, err)

			span, err := NewFileSpan(f)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTotal, span.Total())
			assert.Equal(t, tt.wantTotal, span.Remaining())
			assert.Equal(t, tt.position, span.Offset())
			assert.Zero(t, span.Transferred())

			pos, err := f.Seek(0, io.SeekCurrent)
			require.NoError(t, err)
			assert.Equal(t, tt.position, pos, "measuring must not move the file position")
		})
	}
}

func TestFileSpanInvalidFile(t *testing.T) {
	t.Parallel()

	_, err := NewFileSpan(nil)
	require.ErrorIs(t, err, ErrInvalidFile)

	f := writeTempFile(t, []byte("closed"))
	require.NoError(t, f.Close())

	_, err = NewFileSpan(f)
	require.ErrorIs(t, err, ErrInvalidFile)

	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ErrorCategoryInvalidFile, te.Category)
}

func TestFileSpanAdvance(t *testing.T) {
	t.Parallel()

	span, err := NewFileSpan(writeTempFile(t, make([]byte, 10)))
	require.NoError(t, err)

	require.NoError(t, span.Advance(4))
	assert.Equal(t, int64(6), span.Remaining())

	require.Error(t, span.Advance(7))
	require.Error(t, span.Advance(-1))
	assert.Equal(t, int64(4), span.Transferred(), "a rejected advance changes nothing")

	require.NoError(t, span.Advance(6))
	assert.Zero(t, span.Remaining())
}

func TestClassifyAttempt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		n        int
		err      error
		wantKind AttemptKind
		wantN    int64
	}{
		{name: "bytes moved", n: 512, wantKind: AttemptTransferred, wantN: 512},
		{name: "bytes moved with error", n: 7, err: syscall.EPIPE, wantKind: AttemptTransferred, wantN: 7},
		{name: "would block", err: syscall.EAGAIN, wantKind: AttemptTransferred},
		{name: "interrupted", err: syscall.EINTR, wantKind: AttemptTransferred},
		{name: "not implemented", err: syscall.ENOSYS, wantKind: AttemptUnsupported},
		{name: "invalid", err: syscall.EINVAL, wantKind: AttemptUnsupported},
		{name: "not a socket", err: syscall.ENOTSOCK, wantKind: AttemptUnsupported},
		{name: "unsupported", err: errors.ErrUnsupported, wantKind: AttemptUnsupported},
		{name: "io error", err: syscall.EIO, wantKind: AttemptFailed},
		{name: "broken pipe", err: syscall.EPIPE, wantKind: AttemptFailed},
		{name: "nothing moved", wantKind: AttemptFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := classifyAttempt(tt.n, tt.err)
			assert.Equal(t, tt.wantKind, res.Kind, "kind %s", res.Kind)
			assert.Equal(t, tt.wantN, res.N)
		})
	}
}

func TestAttemptCapsRequest(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, make([]byte, MaxSendfileChunk+10))

	span, err := NewFileSpan(f)
	require.NoError(t, err)

	var requested int

	p := ZeroCopyFunc(func(_, _, count int) (int, error) {
		requested = count
		return 0, syscall.EAGAIN
	})

	res := Attempt(p, newFakeSocket(0), span)
	assert.Equal(t, AttemptTransferred, res.Kind)
	assert.Zero(t, res.N)
	assert.Equal(t, MaxSendfileChunk, requested)
}

func TestFileTransferZeroCopy(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("x"), 1000000)
	f := writeTempFile(t, content)
	sock := newFakeSocket(64 * 1024)

	ft, err := NewFileTransfer(f, WithZeroCopy(&emulatedZeroCopy{file: f, sock: sock}))
	require.NoError(t, err)
	assert.Equal(t, StatePending, ft.State())

	result := drive(t, ft, sock)

	assert.Equal(t, StepDone, result)
	assert.Equal(t, StateDone, ft.State())
	assert.Equal(t, ModeZeroCopy, ft.Mode())
	assert.True(t, bytes.Equal(content, sock.buf.Bytes()), "received bytes differ")

	require.True(t, ft.Completion().Settled())
	require.NoError(t, ft.Completion().Err())

	stats := ft.Stats()
	assert.Equal(t, int64(len(content)), stats.ZeroCopyBytes)
	assert.Zero(t, stats.FallbackBytes)
	assert.Greater(t, stats.Steps, int64(1))
}

func TestFileTransferFallbackWhenUnsupported(t *testing.T) {
	t.Parallel()

	content := make([]byte, 300000)
	for i := range content {
		content[i] = byte(i % 251)
	}

	f := writeTempFile(t, content)
	sock := newFakeSocket(10000)

	ft, err := NewFileTransfer(f, WithZeroCopy(DisabledZeroCopy()))
	require.NoError(t, err)

	require.Equal(t, StepDone, drive(t, ft, sock))
	assert.Equal(t, ModeFallback, ft.Mode())
	assert.True(t, bytes.Equal(content, sock.buf.Bytes()), "received bytes differ")
	require.NoError(t, ft.Completion().Err())
	assert.Equal(t, int64(len(content)), ft.Stats().FallbackBytes)
}

func TestFileTransferEarlyFailureFallsBack(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("early"), 20000)
	f := writeTempFile(t, content)
	sock := newFakeSocket(0)
	zc := &emulatedZeroCopy{file: f, sock: sock, failAt: 0, failErr: syscall.EIO}

	ft, err := NewFileTransfer(f, WithZeroCopy(zc))
	require.NoError(t, err)

	require.Equal(t, StepDone, drive(t, ft, sock))
	assert.Equal(t, ModeFallback, ft.Mode())
	assert.Equal(t, 1, zc.calls, "zero-copy is not retried after falling back")
	assert.True(t, bytes.Equal(content, sock.buf.Bytes()))
	require.NoError(t, ft.Completion().Err(), "early failures are never surfaced")
}

func TestFileTransferLateFailureIsFatal(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("x"), 1000000)
	f := writeTempFile(t, content)
	sock := newFakeSocket(0)
	zc := &emulatedZeroCopy{file: f, sock: sock, maxPerCall: 16384, failAt: 100000, failErr: syscall.EIO}

	ft, err := NewFileTransfer(f, WithZeroCopy(zc))
	require.NoError(t, err)

	result, err := ft.Step(sock)
	require.NoError(t, err)
	assert.Equal(t, StepFatal, result)
	assert.Equal(t, StateFatalError, ft.State())
	assert.Equal(t, ModeZeroCopy, ft.Mode(), "no fallback after progress")

	received := sock.buf.Len()
	assert.GreaterOrEqual(t, received, 100000)
	assert.Less(t, received, len(content))

	completionErr := ft.Completion().Err()
	require.Error(t, completionErr)

	var te *TransferError
	require.ErrorAs(t, completionErr, &te)
	assert.Equal(t, ErrorCategoryZeroCopyLateFailure, te.Category)
	assert.ErrorIs(t, completionErr, syscall.EIO)

	again, err := ft.Step(sock)
	require.NoError(t, err)
	assert.Equal(t, StepDone, again, "a settled transfer does no more work")
	assert.Equal(t, received, sock.buf.Len())
}

func TestFileTransferShrunkFileFailsRead(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, bytes.Repeat([]byte("s"), 50000))

	ft, err := NewFileTransfer(f, WithZeroCopy(DisabledZeroCopy()))
	require.NoError(t, err)

	require.NoError(t, os.Truncate(f.Name(), 1000))

	sock := newFakeSocket(0)
	result, err := ft.Step(sock)
	require.NoError(t, err)
	assert.Equal(t, StepFatal, result)

	var te *TransferError
	require.ErrorAs(t, ft.Completion().Err(), &te)
	assert.Equal(t, ErrorCategoryFallbackReadFailure, te.Category)
	assert.ErrorIs(t, te, io.ErrUnexpectedEOF)
	assert.Equal(t, 1000, sock.buf.Len())
}

func TestFileTransferStartsAtCurrentPosition(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, []byte("0123456789"))
	_, err := f.Seek(4, io.SeekStart)
	require.NoError(t, err)

	sock := newFakeSocket(0)

	ft, err := NewFileTransfer(f, WithZeroCopy(&emulatedZeroCopy{file: f, sock: sock}))
	require.NoError(t, err)

	require.Equal(t, StepDone, drive(t, ft, sock))
	assert.Equal(t, "456789", sock.buf.String())

	pos, err := f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)
}

func TestFileTransferEmptyFile(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, nil)
	sock := newFakeSocket(0)
	zc := &emulatedZeroCopy{file: f, sock: sock}

	ft, err := NewFileTransfer(f, WithZeroCopy(zc))
	require.NoError(t, err)

	result, err := ft.Step(sock)
	require.NoError(t, err)
	assert.Equal(t, StepDone, result)
	assert.Zero(t, zc.calls)
	require.NoError(t, ft.Completion().Err())
}

func TestFileTransferSocketErrorBelongsToConnection(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, bytes.Repeat([]byte("w"), 1000))
	sock := newFakeSocket(0)
	sock.writeErr = syscall.EPIPE

	ft, err := NewFileTransfer(f, WithZeroCopy(DisabledZeroCopy()))
	require.NoError(t, err)

	result, err := ft.Step(sock)
	require.ErrorIs(t, err, syscall.EPIPE)
	assert.Equal(t, StepBlocked, result)
	assert.False(t, ft.Completion().Settled(), "the connection settles it by aborting")

	assert.True(t, ft.Abort(err))

	var te *TransferError
	require.ErrorAs(t, ft.Completion().Err(), &te)
	assert.Equal(t, ErrorCategoryConnectionAborted, te.Category)
}

func TestFileTransferAbort(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, make([]byte, 100))

	ft, err := NewFileTransfer(f)
	require.NoError(t, err)

	assert.True(t, ft.Abort(nil))
	assert.False(t, ft.Abort(nil), "settles only once")
	assert.Equal(t, StateAborted, ft.State())
	assert.ErrorIs(t, ft.Completion().Err(), ErrConnectionClosed)

	result, err := ft.Step(newFakeSocket(0))
	require.NoError(t, err)
	assert.Equal(t, StepDone, result)
}

func TestCompletion(t *testing.T) {
	t.Parallel()

	c := newCompletion()

	var got []error

	c.OnSettle(func(err error) { got = append(got, err) })
	assert.False(t, c.Settled())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)

	first := errors.New("first")
	assert.True(t, c.settle(first))
	assert.False(t, c.settle(nil))

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after settle")
	}

	require.ErrorIs(t, c.Wait(context.Background()), first)

	c.OnSettle(func(err error) { got = append(got, err) })
	assert.Equal(t, []error{first, first}, got)
}
