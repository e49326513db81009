//go:build unix

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

// fdSocket is a non-blocking stream socket descriptor.
type fdSocket int

func (s fdSocket) Fd() int {
	return int(s)
}

// Write returns (0, nil) when the send buffer is full.
func (s fdSocket) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(int(s), p)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, nil
		default:
			return 0, err
		}
	}
}

// Read returns (0, unix.EAGAIN) when nothing is available and (0, nil) at EOF.
func (s fdSocket) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(int(s), p)
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if n < 0 {
			n = 0
		}

		return n, err
	}
}
