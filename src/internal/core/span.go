package core

import (
	"fmt"
	"io"
)

// FileSpan tracks the bytes of a file still to be sent. The file is not
// owned: the caller closes it after the transfer settles.
type FileSpan struct {
	file        File
	offset      int64
	total       int64
	transferred int64
}

// NewFileSpan measures the bytes between the current position of f and its
// end. The position of f is left where it was.
func NewFileSpan(f File) (*FileSpan, error) {
	if f == nil {
		return nil, NewInvalidFileError("measure", ErrInvalidFile)
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, NewInvalidFileError("measure", fmt.Errorf("failed to read file position: %w", err))
	}

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, NewInvalidFileError("measure", fmt.Errorf("failed to seek to end of file: %w", err))
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, NewInvalidFileError("measure", fmt.Errorf("failed to restore file position %d: %w", offset, err))
	}

	total := end - offset
	if total < 0 {
		// positioned past EOF
		total = 0
	}

	return &FileSpan{
		file:   f,
		offset: offset,
		total:  total,
	}, nil
}

// Advance records n more bytes as transferred. The underlying read or
// sendfile has already moved the file position.
func (s *FileSpan) Advance(n int64) error {
	if n < 0 || n > s.Remaining() {
		return fmt.Errorf("cannot advance span by %d bytes, %d remaining", n, s.Remaining())
	}

	s.transferred += n

	return nil
}

// Remaining returns the number of bytes still to send.
func (s *FileSpan) Remaining() int64 {
	return s.total - s.transferred
}

// Transferred returns the number of bytes sent so far.
func (s *FileSpan) Transferred() int64 {
	return s.transferred
}

// Offset returns the file position the span started at.
func (s *FileSpan) Offset() int64 {
	return s.offset
}

// Total returns the number of bytes the span covers.
func (s *FileSpan) Total() int64 {
	return s.total
}

// File returns the file being sent.
func (s *FileSpan) File() File {
	return s.file
}
