package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sentinel errors. TransferError values match them with errors.Is.
var (
	ErrInvalidFile      = errors.New("file is not open or not seekable")
	ErrConnectionClosed = errors.New("connection closed")
	ErrUnsupported      = errors.ErrUnsupported
)

// ErrorCategory represents different types of errors
type ErrorCategory int

// Error categories for classification
const (
	ErrorCategoryUnknown ErrorCategory = iota
	ErrorCategoryInvalidFile
	ErrorCategoryUnsupportedPrimitive
	ErrorCategoryZeroCopyEarlyFailure
	ErrorCategoryZeroCopyLateFailure
	ErrorCategoryFallbackReadFailure
	ErrorCategoryConnectionAborted
	ErrorCategoryNetwork
	ErrorCategoryConfiguration
)

func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryInvalidFile:
		return "InvalidFile"
	case ErrorCategoryUnsupportedPrimitive:
		return "UnsupportedPrimitive"
	case ErrorCategoryZeroCopyEarlyFailure:
		return "ZeroCopyEarlyFailure"
	case ErrorCategoryZeroCopyLateFailure:
		return "ZeroCopyLateFailure"
	case ErrorCategoryFallbackReadFailure:
		return "FallbackReadFailure"
	case ErrorCategoryConnectionAborted:
		return "ConnectionAborted"
	case ErrorCategoryNetwork:
		return "Network"
	case ErrorCategoryConfiguration:
		return "Configuration"
	default:
		return "Unknown"
	}
}

// TransferError represents a classified failure of a transfer or of the
// layers around it.
type TransferError struct {
	Category   ErrorCategory `json:"category"`
	Operation  string        `json:"operation"`
	Message    string        `json:"message"`
	Underlying error         `json:"-"`
	Timestamp  time.Time     `json:"timestamp"`
	// Fatal errors are surfaced to the caller; the others are recovered locally.
	Fatal      bool   `json:"fatal"`
	Suggestion string `json:"suggestion"`
}

func (te *TransferError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", te.Category, te.Operation, te.Message)
}

func (te *TransferError) Unwrap() error {
	return te.Underlying
}

// Is matches the package sentinels by category.
func (te *TransferError) Is(target error) bool {
	switch target {
	case ErrInvalidFile:
		return te.Category == ErrorCategoryInvalidFile
	case ErrConnectionClosed:
		return te.Category == ErrorCategoryConnectionAborted
	case ErrUnsupported:
		return te.Category == ErrorCategoryUnsupportedPrimitive
	default:
		return false
	}
}

func newTransferError(category ErrorCategory, operation string, err error, fatal bool, suggestion string) *TransferError {
	if err == nil {
		err = errors.New(category.String())
	}

	return &TransferError{
		Category:   category,
		Operation:  operation,
		Message:    err.Error(),
		Underlying: err,
		Timestamp:  time.Now(),
		Fatal:      fatal,
		Suggestion: suggestion,
	}
}

// NewInvalidFileError reports a handle that cannot be measured or sent.
func NewInvalidFileError(operation string, err error) *TransferError {
	return newTransferError(ErrorCategoryInvalidFile, operation, err, true,
		"Pass an open regular file positioned where sending should start")
}

// NewUnsupportedPrimitiveError reports that zero-copy is absent in this environment.
func NewUnsupportedPrimitiveError(err error) *TransferError {
	return newTransferError(ErrorCategoryUnsupportedPrimitive, "sendfile", err, false,
		"Nothing to do: the transfer continues with buffered copies")
}

// NewZeroCopyError reports a failed zero-copy attempt. late is true when the
// transfer had already moved bytes, which makes the failure fatal.
func NewZeroCopyError(err error, late bool) *TransferError {
	if late {
		return newTransferError(ErrorCategoryZeroCopyLateFailure, "sendfile", err, true,
			"The peer received a truncated stream; reconnect and send the file again")
	}

	return newTransferError(ErrorCategoryZeroCopyEarlyFailure, "sendfile", err, false,
		"Nothing to do: the transfer continues with buffered copies")
}

// NewFallbackReadError reports a file read failure on the buffered path.
func NewFallbackReadError(err error) *TransferError {
	return newTransferError(ErrorCategoryFallbackReadFailure, "read", err, true,
		"Check that the file was not truncated or removed while it was being sent")
}

// NewAbortedError reports a transfer cut short by the connection going away.
func NewAbortedError(err error) *TransferError {
	if err == nil {
		err = ErrConnectionClosed
	}

	return newTransferError(ErrorCategoryConnectionAborted, "connection", err, true,
		"The connection closed before the file was sent")
}

// NewNetworkError creates a new network-related error.
func NewNetworkError(operation string, err error) *TransferError {
	return newTransferError(ErrorCategoryNetwork, operation, err, true,
		"Check network connectivity and try again")
}

// NewConfigurationError creates a new configuration-related error.
func NewConfigurationError(operation string, err error) *TransferError {
	return newTransferError(ErrorCategoryConfiguration, operation, err, true,
		"Check configuration file syntax and settings")
}

// ErrorHandler manages error collection and reporting
type ErrorHandler struct {
	mu        sync.Mutex
	errors    []*TransferError
	maxErrors int
}

// NewErrorHandler creates a new error handler with the specified maximum error count.
func NewErrorHandler(maxErrors int) *ErrorHandler {
	if maxErrors <= 0 {
		maxErrors = 1000
	}

	return &ErrorHandler{
		errors:    make([]*TransferError, 0),
		maxErrors: maxErrors,
	}
}

// AddError records err. Errors that are not TransferErrors are classified first.
func (eh *ErrorHandler) AddError(operation string, err error) {
	if err == nil {
		return
	}

	te := ClassifyTransferError(operation, err)

	eh.mu.Lock()
	defer eh.mu.Unlock()

	if len(eh.errors) >= eh.maxErrors {
		// Drop the oldest to make room
		eh.errors = eh.errors[1:]
	}

	eh.errors = append(eh.errors, te)
}

// GetErrors returns all collected errors.
func (eh *ErrorHandler) GetErrors() []*TransferError {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	result := make([]*TransferError, len(eh.errors))
	copy(result, eh.errors)

	return result
}

// GetErrorsByCategory returns errors of a specific category.
func (eh *ErrorHandler) GetErrorsByCategory(category ErrorCategory) []*TransferError {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	var result []*TransferError

	for _, err := range eh.errors {
		if err.Category == category {
			result = append(result, err)
		}
	}

	return result
}

// Clear removes all errors from the handler.
func (eh *ErrorHandler) Clear() {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errors = eh.errors[:0]
}

// HasErrors returns true if any errors have been collected.
func (eh *ErrorHandler) HasErrors() bool {
	return eh.ErrorCount() > 0
}

// ErrorCount returns the total number of errors.
func (eh *ErrorHandler) ErrorCount() int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	return len(eh.errors)
}

// GetSummary returns a summary of errors by category.
func (eh *ErrorHandler) GetSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int)
	for _, err := range eh.errors {
		summary[err.Category]++
	}

	return summary
}

// ClassifyTransferError returns err as a TransferError, classifying errors
// that did not come from a transfer.
func ClassifyTransferError(operation string, err error) *TransferError {
	if err == nil {
		return nil
	}

	var te *TransferError
	if errors.As(err, &te) {
		return te
	}

	if errors.Is(err, ErrConnectionClosed) {
		return NewAbortedError(err)
	}

	if isNetworkError(err) {
		return NewNetworkError(operation, err)
	}

	return newTransferError(ErrorCategoryUnknown, operation, err, true,
		"Check logs for more details and try again")
}

// GetRecoverySuggestion returns a suggestion for how to recover from an error.
func GetRecoverySuggestion(err *TransferError) string {
	if err.Suggestion != "" {
		return err.Suggestion
	}

	switch err.Category {
	case ErrorCategoryInvalidFile:
		return "Verify the file exists, is readable and is a regular file"
	case ErrorCategoryZeroCopyLateFailure, ErrorCategoryFallbackReadFailure:
		return "Retry the transfer on a new connection"
	case ErrorCategoryConnectionAborted:
		return "Check that the peer stays connected until the transfer completes"
	case ErrorCategoryNetwork:
		return "Check network connectivity, firewall settings, and DNS resolution"
	case ErrorCategoryConfiguration:
		return "Validate configuration syntax, check file paths, and verify settings"
	default:
		return "Check system logs, verify prerequisites, and contact support if needed"
	}
}
