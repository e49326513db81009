package core

import (
	"time"

	"github.com/sirupsen/logrus"
)

// FileTransfer sends the remaining bytes of one file as one item of a
// connection's write queue. It is driven by Step on each writability
// notification and must only be used from the reactor goroutine.
type FileTransfer struct {
	span       *FileSpan
	zeroCopy   ZeroCopyPrimitive
	fallback   *FallbackProducer
	completion *Completion
	mode       Mode
	state      State
	stats      TransferStats
	log        *logrus.Entry
}

// TransferOption configures a FileTransfer.
type TransferOption func(*FileTransfer)

// WithZeroCopy sets the zero-copy primitive. A nil primitive disables zero-copy.
func WithZeroCopy(p ZeroCopyPrimitive) TransferOption {
	return func(t *FileTransfer) {
		if p == nil {
			p = DisabledZeroCopy()
		}

		t.zeroCopy = p
	}
}

// WithLogger sets the log entry transfers log through.
func WithLogger(entry *logrus.Entry) TransferOption {
	return func(t *FileTransfer) {
		if entry != nil {
			t.log = entry
		}
	}
}

// NewFileTransfer measures f and returns a pending transfer of its remaining
// bytes. It fails with an InvalidFile error if f cannot be measured.
func NewFileTransfer(f File, opts ...TransferOption) (*FileTransfer, error) {
	span, err := NewFileSpan(f)
	if err != nil {
		return nil, err
	}

	t := &FileTransfer{
		span:       span,
		zeroCopy:   PlatformZeroCopy(),
		completion: newCompletion(),
		mode:       ModeZeroCopy,
		state:      StatePending,
		log:        logrus.NewEntry(logrus.StandardLogger()),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.stats.Total = span.Total()
	t.log = t.log.WithFields(logrus.Fields{
		"offset": span.Offset(),
		"total":  span.Total(),
	})

	return t, nil
}

// Step drives the transfer for one writability notification.
//
// StepDone means every byte was handed to the socket and the completion
// settled with success. StepFatal means the completion settled with a
// failure and the byte stream is broken. A non-nil error is a socket write
// failure on the buffered path; it belongs to the connection, which is
// expected to tear down and abort the transfer.
func (t *FileTransfer) Step(sock Socket) (StepResult, error) {
	if t.state.Terminal() {
		return StepDone, nil
	}

	if t.state == StatePending {
		t.state = StateZeroCopyActive
		t.stats.StartTime = time.Now()
	}

	t.stats.Steps++

	if t.state == StateZeroCopyActive {
		if result, handled := t.stepZeroCopy(sock); handled {
			return result, nil
		}
	}

	return t.stepFallback(sock)
}

// stepZeroCopy returns handled == false when the transfer switched to the
// fallback path and the caller should drive it in the same notification.
func (t *FileTransfer) stepZeroCopy(sock Socket) (StepResult, bool) {
	for {
		if t.span.Remaining() == 0 {
			t.finish()
			return StepDone, true
		}

		res := Attempt(t.zeroCopy, sock, t.span)

		switch res.Kind {
		case AttemptTransferred:
			if res.N == 0 {
				return StepBlocked, true
			}

			if err := t.span.Advance(res.N); err != nil {
				t.fail(NewZeroCopyError(err, true))
				return StepFatal, true
			}

			t.stats.ZeroCopyBytes += res.N

		case AttemptUnsupported, AttemptFailed:
			if t.stats.ZeroCopyBytes > 0 {
				t.fail(NewZeroCopyError(res.Err, true))
				return StepFatal, true
			}

			t.switchToFallback(res)

			return StepBlocked, false
		}
	}
}

func (t *FileTransfer) switchToFallback(res AttemptResult) {
	var cause *TransferError
	if res.Kind == AttemptUnsupported {
		cause = NewUnsupportedPrimitiveError(res.Err)
	} else {
		cause = NewZeroCopyError(res.Err, false)
	}

	t.log.WithFields(logrus.Fields{
		"function": "switchToFallback",
		"category": cause.Category.String(),
		"error":    res.Err,
	}).Debug("Zero-copy unavailable, switching to buffered copy")

	t.mode = ModeFallback
	t.state = StateFallback
	t.fallback = NewFallbackProducer(t.span)
}

func (t *FileTransfer) stepFallback(sock Socket) (StepResult, error) {
	res, err := t.fallback.Produce(sock)
	t.stats.FallbackBytes = t.fallback.Written()

	switch res {
	case ProduceDone:
		t.finish()
		return StepDone, nil
	case ProduceReadFailed:
		t.fail(NewFallbackReadError(err))
		return StepFatal, nil
	case ProduceWriteFailed:
		return StepBlocked, err
	default:
		return StepBlocked, nil
	}
}

func (t *FileTransfer) finish() {
	t.state = StateDone
	t.stamp()

	t.log.WithFields(logrus.Fields{
		"function":        "finish",
		"mode":            t.mode.String(),
		"zero_copy_bytes": t.stats.ZeroCopyBytes,
		"fallback_bytes":  t.stats.FallbackBytes,
		"steps":           t.stats.Steps,
		"duration":        t.stats.Duration,
	}).Debug("File transfer completed")

	t.completion.settle(nil)
}

func (t *FileTransfer) fail(err *TransferError) {
	t.state = StateFatalError
	t.stamp()

	t.log.WithFields(logrus.Fields{
		"function":    "fail",
		"mode":        t.mode.String(),
		"category":    err.Category.String(),
		"transferred": t.span.Transferred(),
		"error":       err.Message,
	}).Error("File transfer failed")

	t.completion.settle(err)
}

// Abort settles the transfer as aborted by the connection going away. It
// reports false if the transfer had already settled.
func (t *FileTransfer) Abort(cause error) bool {
	if t.state.Terminal() {
		return false
	}

	t.state = StateAborted
	t.stamp()

	t.log.WithFields(logrus.Fields{
		"function":    "Abort",
		"transferred": t.span.Transferred(),
		"cause":       cause,
	}).Warn("File transfer aborted")

	return t.completion.settle(NewAbortedError(cause))
}

func (t *FileTransfer) stamp() {
	if t.stats.StartTime.IsZero() {
		t.stats.StartTime = time.Now()
	}

	t.stats.EndTime = time.Now()
	t.stats.Duration = t.stats.EndTime.Sub(t.stats.StartTime)
}

// Completion returns the transfer's completion signal.
func (t *FileTransfer) Completion() *Completion {
	return t.completion
}

// State returns the current state.
func (t *FileTransfer) State() State {
	return t.state
}

// Mode returns the mechanism in use.
func (t *FileTransfer) Mode() Mode {
	return t.mode
}

// Remaining returns the number of bytes not yet read from the file.
func (t *FileTransfer) Remaining() int64 {
	return t.span.Remaining()
}

// Stats returns a snapshot of the transfer statistics.
func (t *FileTransfer) Stats() TransferStats {
	stats := t.stats
	stats.Mode = t.mode
	stats.State = t.state

	return stats
}
