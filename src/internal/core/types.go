package core

import (
	"io"
	"time"
)

// File is an open, seekable file handle whose remaining bytes can be sent.
// *os.File satisfies it.
type File interface {
	io.Reader
	io.Seeker
	Fd() uintptr
}

// Socket is the non-blocking destination of a transfer.
type Socket interface {
	Fd() int
	// Write writes as much of p as the socket accepts without blocking.
	// It returns (0, nil) when the socket send buffer is full.
	Write(p []byte) (int, error)
}

// Mode is the mechanism a transfer uses to move bytes.
type Mode int

// Transfer modes
const (
	ModeZeroCopy Mode = iota
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeZeroCopy:
		return "zero-copy"
	case ModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// State is the position of a transfer in its lifecycle.
type State int

// Transfer states
const (
	StatePending State = iota
	StateZeroCopyActive
	StateFallback
	StateDone
	StateFatalError
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateZeroCopyActive:
		return "zero-copy-active"
	case StateFallback:
		return "fallback"
	case StateDone:
		return "done"
	case StateFatalError:
		return "fatal-error"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further work happens in this state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFatalError || s == StateAborted
}

// StepResult tells the write queue what to do with an item after one
// writability notification.
type StepResult int

// Step results
const (
	// StepBlocked means the item has more to send and waits for the next notification.
	StepBlocked StepResult = iota
	// StepDone means the item is exhausted and leaves the queue.
	StepDone
	// StepFatal means the item failed in a way that breaks the byte stream; the
	// connection must be aborted.
	StepFatal
)

func (r StepResult) String() string {
	switch r {
	case StepBlocked:
		return "blocked"
	case StepDone:
		return "done"
	case StepFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// TransferStats describes how one transfer moved its bytes.
type TransferStats struct {
	Total         int64         `json:"total"`
	ZeroCopyBytes int64         `json:"zeroCopyBytes"`
	FallbackBytes int64         `json:"fallbackBytes"`
	Steps         int64         `json:"steps"`
	Mode          Mode          `json:"mode"`
	State         State         `json:"state"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// ServerStats contains counters for a serving session.
type ServerStats struct {
	ConnectionsAccepted int64         `json:"connectionsAccepted"`
	ConnectionsRejected int64         `json:"connectionsRejected"`
	TransfersCompleted  int64         `json:"transfersCompleted"`
	TransfersFailed     int64         `json:"transfersFailed"`
	BytesTransferred    int64         `json:"bytesTransferred"`
	StartTime           time.Time     `json:"startTime"`
	EndTime             time.Time     `json:"endTime,omitempty"`
	Duration            time.Duration `json:"duration"`
}

// Progress tracks the progress of a receive.
type Progress struct {
	Current    int64         `json:"current"`
	Total      int64         `json:"total"`
	Percentage float64       `json:"percentage"`
	Speed      int64         `json:"speed"`
	ETA        time.Duration `json:"eta"`
}

// ChangeEvent represents a change to a watched file.
type ChangeEvent struct {
	Type      ChangeType `json:"type"`
	Path      string     `json:"path"`
	Timestamp time.Time  `json:"timestamp"`
}

// ChangeType represents the type of file system change.
type ChangeType int

// File system change types
const (
	ChangeCreate ChangeType = iota
	ChangeModify
	ChangeDelete
	ChangeRename
)

func (ct ChangeType) String() string {
	switch ct {
	case ChangeCreate:
		return "create"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	case ChangeRename:
		return "rename"
	default:
		return "unknown"
	}
}
