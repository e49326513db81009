package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/howmanysmall/wirefile/src/internal/config"
	"github.com/howmanysmall/wirefile/src/internal/core"
	"github.com/sirupsen/logrus"
)

// ReceiveOptions configures Receive.
type ReceiveOptions struct {
	Retry        *config.RetryConfig
	ChecksumAlgo string
	DialTimeout  time.Duration
	// ExpectedSize is used for progress percentages; zero means unknown.
	ExpectedSize int64
	OnProgress   func(core.Progress)
	Logger       *logrus.Entry
}

// ReceiveResult describes a completed receive.
type ReceiveResult struct {
	Bytes     int64         `json:"bytes"`
	Checksum  string        `json:"checksum"`
	Algorithm string        `json:"algorithm"`
	Duration  time.Duration `json:"duration"`
}

// Receive connects to addr and writes everything the server sends into the
// file at out until the server closes the connection.
func Receive(ctx context.Context, addr, out string, opts ReceiveOptions) (*ReceiveResult, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	hasher, err := core.NewHasher(opts.ChecksumAlgo)
	if err != nil {
		return nil, core.NewConfigurationError("checksum", err)
	}

	algo := opts.ChecksumAlgo
	if algo == "" {
		algo = string(config.ChecksumBlake3)
	}

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	if dialer.Timeout == 0 {
		dialer.Timeout = 10 * time.Second
	}

	var nc net.Conn

	rm := core.NewRetryManager(opts.Retry)

	err = rm.Do(ctx, func(attempt int) error {
		c, dialErr := dialer.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			log.WithFields(logrus.Fields{
				"function": "Receive",
				"addr":     addr,
				"attempt":  attempt,
				"error":    dialErr,
			}).Debug("Dial failed")

			return dialErr
		}

		nc = c

		return nil
	})
	if err != nil {
		return nil, core.NewNetworkError("dial", err)
	}

	defer func() {
		_ = nc.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = nc.Close()
	})
	defer stop()

	file, err := os.Create(out)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", out, err)
	}

	start := time.Now()
	progress := newProgressWriter(opts.ExpectedSize, opts.OnProgress)

	n, copyErr := io.Copy(io.MultiWriter(file, hasher, progress), nc)
	progress.flush()

	if cerr := file.Close(); cerr != nil && copyErr == nil {
		copyErr = cerr
	}

	if copyErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("receive cancelled after %d bytes: %w", n, ctx.Err())
		}

		return nil, core.NewNetworkError("receive", copyErr)
	}

	result := &ReceiveResult{
		Bytes:     n,
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
		Algorithm: algo,
		Duration:  time.Since(start),
	}

	log.WithFields(logrus.Fields{
		"function": "Receive",
		"bytes":    result.Bytes,
		"checksum": result.Checksum,
		"duration": result.Duration,
	}).Info("Receive completed")

	return result, nil
}

// progressWriter counts bytes and reports progress at most every interval.
type progressWriter struct {
	mu         sync.Mutex
	total      int64
	current    int64
	start      time.Time
	lastReport time.Time
	interval   time.Duration
	report     func(core.Progress)
}

func newProgressWriter(total int64, report func(core.Progress)) *progressWriter {
	now := time.Now()

	return &progressWriter{
		total:    total,
		start:    now,
		interval: 100 * time.Millisecond,
		report:   report,
	}
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.current += int64(len(p))

	if pw.report != nil && time.Since(pw.lastReport) >= pw.interval {
		pw.lastReport = time.Now()
		pw.report(pw.snapshot())
	}

	return len(p), nil
}

func (pw *progressWriter) flush() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.report != nil {
		pw.report(pw.snapshot())
	}
}

func (pw *progressWriter) snapshot() core.Progress {
	p := core.Progress{
		Current: pw.current,
		Total:   pw.total,
	}

	elapsed := time.Since(pw.start)
	if elapsed > 0 {
		p.Speed = int64(float64(pw.current) / elapsed.Seconds())
	}

	if pw.total > 0 {
		p.Percentage = float64(pw.current) / float64(pw.total) * 100
		if p.Speed > 0 && pw.total > pw.current {
			p.ETA = time.Duration(float64(pw.total-pw.current)/float64(p.Speed)) * time.Second
		}
	}

	return p
}
