package core

import (
	"errors"
	"io"
	"syscall"
)

// MaxSendfileChunk bounds the byte count requested from one sendfile call.
const MaxSendfileChunk = 4 << 20

// ZeroCopyPrimitive moves up to count bytes from the current position of
// srcFd into dstFd without passing them through user space, advancing the
// source position by the number of bytes moved. It must not block.
type ZeroCopyPrimitive interface {
	Sendfile(dstFd, srcFd, count int) (int, error)
}

// ZeroCopyFunc adapts a function to ZeroCopyPrimitive.
type ZeroCopyFunc func(dstFd, srcFd, count int) (int, error)

// Sendfile calls f.
func (f ZeroCopyFunc) Sendfile(dstFd, srcFd, count int) (int, error) {
	return f(dstFd, srcFd, count)
}

// DisabledZeroCopy returns a primitive that always reports itself
// unsupported, sending every transfer down the buffered path.
func DisabledZeroCopy() ZeroCopyPrimitive {
	return ZeroCopyFunc(func(int, int, int) (int, error) {
		return 0, errors.ErrUnsupported
	})
}

// AttemptKind is the outcome class of one zero-copy attempt.
type AttemptKind int

// Attempt outcomes
const (
	// AttemptTransferred moved N bytes; N == 0 means the socket would block.
	AttemptTransferred AttemptKind = iota
	AttemptUnsupported
	AttemptFailed
)

func (k AttemptKind) String() string {
	switch k {
	case AttemptTransferred:
		return "transferred"
	case AttemptUnsupported:
		return "unsupported"
	case AttemptFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AttemptResult is the translated result of one zero-copy attempt.
type AttemptResult struct {
	Kind AttemptKind
	N    int64
	Err  error
}

// Attempt performs one zero-copy transfer of up to the span's remaining
// bytes from its file into sock.
func Attempt(p ZeroCopyPrimitive, sock Socket, span *FileSpan) AttemptResult {
	count := span.Remaining()
	if count > MaxSendfileChunk {
		count = MaxSendfileChunk
	}

	if count == 0 {
		return AttemptResult{Kind: AttemptTransferred}
	}

	n, err := p.Sendfile(sock.Fd(), int(span.File().Fd()), int(count))

	return classifyAttempt(n, err)
}

func classifyAttempt(n int, err error) AttemptResult {
	if n > 0 {
		return AttemptResult{Kind: AttemptTransferred, N: int64(n)}
	}

	if err == nil {
		// Nothing moved although bytes were requested: the file shrank.
		return AttemptResult{Kind: AttemptFailed, Err: io.ErrUnexpectedEOF}
	}

	switch {
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		return AttemptResult{Kind: AttemptTransferred}
	case isUnsupportedError(err):
		return AttemptResult{Kind: AttemptUnsupported, Err: err}
	default:
		return AttemptResult{Kind: AttemptFailed, Err: err}
	}
}

func isUnsupportedError(err error) bool {
	// ENOSYS, ENOTSUP and EOPNOTSUPP match errors.ErrUnsupported.
	return errors.Is(err, errors.ErrUnsupported) ||
		errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTSOCK)
}
