package core

import (
	"errors"
	"io"
)

// FallbackChunkSize is the number of bytes the buffered path reads from the
// file at a time.
const FallbackChunkSize = 64 * 1024

// ProduceResult is the outcome of driving the fallback producer once.
type ProduceResult int

// Produce outcomes
const (
	ProduceBlocked ProduceResult = iota
	ProduceDone
	ProduceReadFailed
	ProduceWriteFailed
)

// FallbackProducer copies a span through a user-space buffer when zero-copy
// is unavailable. It holds at most one chunk between notifications.
type FallbackProducer struct {
	span    *FileSpan
	buf     []byte
	pending []byte
	written int64
}

// NewFallbackProducer creates a producer for the remaining bytes of span.
func NewFallbackProducer(span *FileSpan) *FallbackProducer {
	return &FallbackProducer{span: span}
}

// Produce reads chunks from the file and writes them to sock until the socket
// would block, the span is exhausted, or an error occurs. A read error is
// returned with ProduceReadFailed; a socket error with ProduceWriteFailed.
func (fp *FallbackProducer) Produce(sock Socket) (ProduceResult, error) {
	for {
		if len(fp.pending) == 0 {
			remaining := fp.span.Remaining()
			if remaining == 0 {
				return ProduceDone, nil
			}

			if err := fp.readChunk(remaining); err != nil {
				return ProduceReadFailed, err
			}
		}

		n, err := sock.Write(fp.pending)
		fp.written += int64(n)
		fp.pending = fp.pending[n:]

		if err != nil {
			return ProduceWriteFailed, err
		}

		if len(fp.pending) > 0 {
			return ProduceBlocked, nil
		}
	}
}

func (fp *FallbackProducer) readChunk(remaining int64) error {
	if fp.buf == nil {
		fp.buf = make([]byte, FallbackChunkSize)
	}

	size := int64(len(fp.buf))
	if remaining < size {
		size = remaining
	}

	n, err := fp.span.File().Read(fp.buf[:size])
	if n > 0 {
		if advErr := fp.span.Advance(int64(n)); advErr != nil {
			return advErr
		}

		fp.pending = fp.buf[:n]

		// A read error that came with data resurfaces on the next read.
		return nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return err
}

// Written returns the number of bytes handed to the socket.
func (fp *FallbackProducer) Written() int64 {
	return fp.written
}

// Pending returns the number of bytes read but not yet written.
func (fp *FallbackProducer) Pending() int {
	return len(fp.pending)
}
