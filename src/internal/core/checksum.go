package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"

	"github.com/zeebo/blake3"
)

// NewHasher returns a hash for the named algorithm (blake3 or sha256).
func NewHasher(algo string) (hash.Hash, error) {
	switch algo {
	case "", "blake3":
		return blake3.New(), nil
	case "sha256":
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algo)
	}
}

// Checksummer computes file checksums, caching them by size and
// modification time.
type Checksummer struct {
	algo  string
	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	checksum string
	modTime  int64
	size     int64
}

// NewChecksummer creates a checksummer for the given algorithm.
func NewChecksummer(algo string) (*Checksummer, error) {
	if _, err := NewHasher(algo); err != nil {
		return nil, err
	}

	if algo == "" {
		algo = "blake3"
	}

	return &Checksummer{
		algo:  algo,
		cache: make(map[string]cacheEntry),
	}, nil
}

// Algorithm returns the configured algorithm name.
func (c *Checksummer) Algorithm() string {
	return c.algo
}

// FileChecksum returns the hex checksum of the file at path.
func (c *Checksummer) FileChecksum(path string) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat file %s: %w", path, err)
	}

	c.mu.RLock()

	if entry, exists := c.cache[path]; exists {
		if entry.modTime == stat.ModTime().UnixNano() && entry.size == stat.Size() {
			c.mu.RUnlock()
			return entry.checksum, nil
		}
	}

	c.mu.RUnlock()

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	checksum, err := c.Sum(file)
	if err != nil {
		return "", fmt.Errorf("failed to calculate checksum for %s: %w", path, err)
	}

	c.mu.Lock()
	c.cache[path] = cacheEntry{
		checksum: checksum,
		modTime:  stat.ModTime().UnixNano(),
		size:     stat.Size(),
	}
	c.mu.Unlock()

	return checksum, nil
}

// Sum returns the hex checksum of everything read from r.
func (c *Checksummer) Sum(r io.Reader) (string, error) {
	hasher, err := NewHasher(c.algo)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Invalidate drops the cached checksum for path.
func (c *Checksummer) Invalidate(path string) {
	c.mu.Lock()
	delete(c.cache, path)
	c.mu.Unlock()
}

// CacheLen returns the number of cached checksums.
func (c *Checksummer) CacheLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.cache)
}
