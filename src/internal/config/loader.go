// Package config provides configuration loading and validation for the wirefile CLI tool.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"
)

// Loader handles loading and parsing configuration files from multiple formats.
type Loader struct {
	searchPaths []string
}

// NewLoader creates a new configuration loader with default search paths.
func NewLoader() *Loader {
	searchPaths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "wirefile"),
			filepath.Join(home, ".wirefile"),
		)
	}

	return &Loader{searchPaths: searchPaths}
}

// Load loads configuration from the specified path or searches for default config files.
func (l *Loader) Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = l.findDefaultConfig()
	}

	if configPath == "" {
		return l.getDefaultConfig(), nil
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))

	config, err := l.parseByExtension(content, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := l.resolveExtends(config); err != nil {
		return nil, fmt.Errorf("failed to resolve profile inheritance: %w", err)
	}

	if err := l.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Profile returns the named profile, or the default profile for "" and "default".
func (c *Config) Profile(name string) (*Profile, error) {
	if name == "" || name == "default" {
		if c.Default != nil {
			return c.Default, nil
		}

		if p, ok := c.Profiles["default"]; ok {
			return p, nil
		}

		return nil, fmt.Errorf("config has no default profile")
	}

	p, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %s not found", name)
	}

	return p, nil
}

func (l *Loader) findDefaultConfig() string {
	candidates := []string{
		"wirefile.jsonc",
		"wirefile.json",
		"wirefile.toml",
		".wirefile.jsonc",
		".wirefile.json",
		".wirefile.toml",
	}

	for _, searchPath := range l.searchPaths {
		for _, candidate := range candidates {
			fullPath := filepath.Join(searchPath, candidate)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath
			}
		}
	}

	return ""
}

func (l *Loader) parseByExtension(content []byte, ext string) (*Config, error) {
	var config Config

	switch ext {
	case ".json", ".jsonc":
		cleaned := l.stripJSONComments(string(content))
		if !gjson.Valid(cleaned) {
			return nil, fmt.Errorf("invalid JSON")
		}

		if err := json.Unmarshal([]byte(cleaned), &config); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(content, &config); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// stripJSONComments removes // comments that sit outside string literals.
func (l *Loader) stripJSONComments(content string) string {
	if gjson.Valid(content) {
		return content
	}

	var sb strings.Builder

	inString := false
	escaped := false

	for i := 0; i < len(content); i++ {
		c := content[i]

		if inString {
			sb.WriteByte(c)

			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}

			continue
		}

		if c == '/' && i+1 < len(content) && content[i+1] == '/' {
			for i < len(content) && content[i] != '\n' {
				i++
			}

			if i < len(content) {
				sb.WriteByte('\n')
			}

			continue
		}

		if c == '"' {
			inString = true
		}

		sb.WriteByte(c)
	}

	return sb.String()
}

func (l *Loader) validateConfig(config *Config) error {
	if config.Version == "" {
		config.Version = "1.0"
	}

	if config.Default == nil && len(config.Profiles) == 0 {
		return fmt.Errorf("config must have either a default profile or named profiles")
	}

	if config.Default != nil {
		if err := l.validateProfile(config.Default); err != nil {
			return fmt.Errorf("invalid default profile: %w", err)
		}
	}

	for name, profile := range config.Profiles {
		if err := l.validateProfile(profile); err != nil {
			return fmt.Errorf("invalid profile %s: %w", name, err)
		}
	}

	return nil
}

func (l *Loader) validateProfile(profile *Profile) error {
	if profile.Listen == "" {
		profile.Listen = DefaultListen
	}

	if profile.Transfer == nil {
		profile.Transfer = &TransferConfig{}
	}

	if err := l.validateTransferConfig(profile.Transfer); err != nil {
		return fmt.Errorf("invalid transfer config: %w", err)
	}

	if profile.Server == nil {
		profile.Server = &ServerConfig{}
	}

	if profile.Server.MaxConns < 0 {
		return fmt.Errorf("maxConns must be non-negative, got %d", profile.Server.MaxConns)
	}

	if profile.Retry == nil {
		profile.Retry = &RetryConfig{}
	}

	return l.validateRetryConfig(profile.Retry)
}

func (l *Loader) validateTransferConfig(config *TransferConfig) error {
	if config.ChecksumAlgo == "" {
		config.ChecksumAlgo = string(ChecksumBlake3)
	}

	switch ChecksumAlgo(config.ChecksumAlgo) {
	case ChecksumBlake3, ChecksumSHA256:
		return nil
	default:
		return fmt.Errorf("invalid checksum algorithm %s, must be one of: %v",
			config.ChecksumAlgo, []string{string(ChecksumBlake3), string(ChecksumSHA256)})
	}
}

func (l *Loader) validateRetryConfig(config *RetryConfig) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}

	if config.InitialDelay == 0 {
		config.InitialDelay = 100 * time.Millisecond
	}

	if config.MaxDelay == 0 {
		config.MaxDelay = 10 * time.Second
	}

	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}

	if config.Backoff == "" {
		config.Backoff = string(BackoffExponential)
	}

	switch BackoffStrategy(config.Backoff) {
	case BackoffLinear, BackoffExponential, BackoffFixed:
		return nil
	default:
		return fmt.Errorf("invalid backoff %s", config.Backoff)
	}
}

func (l *Loader) resolveExtends(config *Config) error {
	for name, profile := range config.Profiles {
		if profile.Extends != "" {
			if err := l.applyExtends(name, profile, config, map[string]bool{}); err != nil {
				return fmt.Errorf("failed to resolve extends for profile %s: %w", name, err)
			}
		}
	}

	return nil
}

func (l *Loader) applyExtends(name string, profile *Profile, config *Config, seen map[string]bool) error {
	if seen[name] {
		return fmt.Errorf("profile %s extends itself", name)
	}

	seen[name] = true

	var base *Profile

	if profile.Extends == "default" && config.Default != nil {
		base = config.Default
	} else if p, exists := config.Profiles[profile.Extends]; exists {
		base = p
		if base.Extends != "" {
			if err := l.applyExtends(profile.Extends, base, config, seen); err != nil {
				return err
			}
		}
	} else {
		return fmt.Errorf("extended profile %s not found", profile.Extends)
	}

	l.mergeProfiles(profile, base)
	profile.Extends = ""

	return nil
}

func (l *Loader) mergeProfiles(target, base *Profile) {
	if target.Listen == "" {
		target.Listen = base.Listen
	}

	if target.File == "" {
		target.File = base.File
	}

	if target.Transfer == nil {
		target.Transfer = base.Transfer
	} else if base.Transfer != nil {
		if target.Transfer.ZeroCopy == nil {
			target.Transfer.ZeroCopy = base.Transfer.ZeroCopy
		}

		if target.Transfer.ChecksumAlgo == "" {
			target.Transfer.ChecksumAlgo = base.Transfer.ChecksumAlgo
		}
	}

	if target.Retry == nil {
		target.Retry = base.Retry
	}

	if target.Server == nil {
		target.Server = base.Server
	}
}

func (l *Loader) getDefaultConfig() *Config {
	zeroCopy := true

	return &Config{
		Version: "1.0",
		Default: &Profile{
			Listen: DefaultListen,
			Transfer: &TransferConfig{
				ZeroCopy:     &zeroCopy,
				ChecksumAlgo: string(ChecksumBlake3),
			},
			Retry: &RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     10 * time.Second,
				Multiplier:   2.0,
				Backoff:      string(BackoffExponential),
			},
			Server: &ServerConfig{
				MaxConns: 0, // unlimited
			},
		},
	}
}
