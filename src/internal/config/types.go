package config

import (
	"time"
)

// Config represents the main configuration structure for wirefile.
type Config struct {
	Version  string              `json:"version" toml:"version"`
	Default  *Profile            `json:"default,omitempty" toml:"default,omitempty"`
	Profiles map[string]*Profile `json:"profiles,omitempty" toml:"profiles,omitempty"`
}

// Profile defines how a file is served and received.
type Profile struct {
	Listen   string          `json:"listen,omitempty" toml:"listen,omitempty"`
	File     string          `json:"file,omitempty" toml:"file,omitempty"`
	Transfer *TransferConfig `json:"transfer,omitempty" toml:"transfer,omitempty"`
	Retry    *RetryConfig    `json:"retry,omitempty" toml:"retry,omitempty"`
	Server   *ServerConfig   `json:"server,omitempty" toml:"server,omitempty"`
	Extends  string          `json:"extends,omitempty" toml:"extends,omitempty"`
}

// TransferConfig defines how bytes are moved onto the socket.
type TransferConfig struct {
	// ZeroCopy is a pointer so an absent key keeps the default of true.
	ZeroCopy     *bool  `json:"zeroCopy,omitempty" toml:"zeroCopy,omitempty"`
	ChecksumAlgo string `json:"checksumAlgo" toml:"checksumAlgo"`
}

// ZeroCopyEnabled reports whether sendfile should be attempted.
func (tc *TransferConfig) ZeroCopyEnabled() bool {
	return tc == nil || tc.ZeroCopy == nil || *tc.ZeroCopy
}

// RetryConfig defines retry behavior for failed operations.
type RetryConfig struct {
	MaxAttempts  int           `json:"maxAttempts" toml:"maxAttempts"`
	InitialDelay time.Duration `json:"initialDelay" toml:"initialDelay"`
	MaxDelay     time.Duration `json:"maxDelay" toml:"maxDelay"`
	Multiplier   float64       `json:"multiplier" toml:"multiplier"`
	Backoff      string        `json:"backoff" toml:"backoff"`
}

// ServerConfig defines listener behavior for serve.
type ServerConfig struct {
	MaxConns int    `json:"maxConns" toml:"maxConns"`
	Watch    bool   `json:"watch" toml:"watch"`
	Banner   string `json:"banner,omitempty" toml:"banner,omitempty"`
}

// ChecksumAlgo names a supported digest.
type ChecksumAlgo string

// Checksum algorithms
const (
	ChecksumBlake3 ChecksumAlgo = "blake3"
	ChecksumSHA256 ChecksumAlgo = "sha256"
)

// BackoffStrategy represents different retry backoff strategies
type BackoffStrategy string

// Retry backoff strategies
const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffFixed       BackoffStrategy = "fixed"
)

// DefaultListen is the address serve binds when none is configured.
const DefaultListen = "127.0.0.1:7070"
