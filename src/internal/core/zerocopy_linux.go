//go:build linux

package core

import (
	"golang.org/x/sys/unix"
)

// PlatformZeroCopy returns the sendfile(2) primitive. A nil offset makes the
// kernel read from, and advance, the file's own position.
func PlatformZeroCopy() ZeroCopyPrimitive {
	return ZeroCopyFunc(func(dstFd, srcFd, count int) (int, error) {
		return unix.Sendfile(dstFd, srcFd, nil, count)
	})
}
