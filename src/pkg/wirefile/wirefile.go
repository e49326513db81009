// Package wirefile provides public API types and functions for sending files
// over reactor-driven connections.
package wirefile

import (
	"github.com/howmanysmall/wirefile/src/internal/config"
	"github.com/howmanysmall/wirefile/src/internal/core"
)

// Transfer types are re-exported for public API access.
type (
	// File is an open, positioned file whose remaining bytes can be sent.
	File = core.File
	// Completion settles once when a file transfer finishes or fails.
	Completion = core.Completion
	// TransferError is the error a failed completion carries.
	TransferError = core.TransferError
	// ErrorCategory classifies a TransferError.
	ErrorCategory = core.ErrorCategory
	// ZeroCopyPrimitive moves bytes from a file to a socket in the kernel.
	ZeroCopyPrimitive = core.ZeroCopyPrimitive
	// ZeroCopyFunc adapts a function to ZeroCopyPrimitive.
	ZeroCopyFunc = core.ZeroCopyFunc
)

// Config and related types are re-exported for public API access.
type (
	Config = config.Config
	// Profile re-exports config.Profile for public API consumers.
	Profile = config.Profile
	// TransferConfig re-exports config.TransferConfig for public API consumers.
	TransferConfig = config.TransferConfig
	// RetryConfig re-exports config.RetryConfig for public API consumers.
	RetryConfig = config.RetryConfig
	// ServerConfig re-exports config.ServerConfig for public API consumers.
	ServerConfig = config.ServerConfig
	// BackoffStrategy re-exports config.BackoffStrategy.
	BackoffStrategy = config.BackoffStrategy
)

// Re-export constants
const (
	FallbackChunkSize = core.FallbackChunkSize

	ErrorCategoryInvalidFile          = core.ErrorCategoryInvalidFile
	ErrorCategoryUnsupportedPrimitive = core.ErrorCategoryUnsupportedPrimitive
	ErrorCategoryZeroCopyEarlyFailure = core.ErrorCategoryZeroCopyEarlyFailure
	ErrorCategoryZeroCopyLateFailure  = core.ErrorCategoryZeroCopyLateFailure
	ErrorCategoryFallbackReadFailure  = core.ErrorCategoryFallbackReadFailure
	ErrorCategoryConnectionAborted    = core.ErrorCategoryConnectionAborted

	BackoffLinear      = config.BackoffLinear
	BackoffExponential = config.BackoffExponential
	BackoffFixed       = config.BackoffFixed
)

// Sentinel errors re-exported for errors.Is checks.
var (
	ErrInvalidFile      = core.ErrInvalidFile
	ErrConnectionClosed = core.ErrConnectionClosed
	ErrUnsupported      = core.ErrUnsupported
)

// PlatformZeroCopy returns sendfile(2) where the platform supports it.
func PlatformZeroCopy() ZeroCopyPrimitive {
	return core.PlatformZeroCopy()
}

// DisabledZeroCopy returns a primitive that always falls back to buffered copies.
func DisabledZeroCopy() ZeroCopyPrimitive {
	return core.DisabledZeroCopy()
}

// LoadConfig loads and validates a configuration file from the specified path.
func LoadConfig(configPath string) (*Config, error) {
	loader := config.NewLoader()

	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
