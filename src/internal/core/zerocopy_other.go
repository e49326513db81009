//go:build !linux

package core

// PlatformZeroCopy returns a primitive that reports itself unsupported; other
// platforms send files through the buffered path.
func PlatformZeroCopy() ZeroCopyPrimitive {
	return DisabledZeroCopy()
}
