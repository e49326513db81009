package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher reports debounced changes to a single file. It watches the
// parent directory so that editors replacing the file by rename are seen.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	path      string
	events    chan ChangeEvent
	errors    chan error
	debouncer *eventDebouncer
	mu        sync.Mutex
	running   bool
}

type eventDebouncer struct {
	delay   time.Duration
	pending *time.Timer
	mu      sync.Mutex
}

// NewFileWatcher creates a watcher for path with the specified debounce delay.
func NewFileWatcher(path string, debounceDelay time.Duration) (*FileWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory of %s: %w", absPath, err)
	}

	if debounceDelay == 0 {
		debounceDelay = 100 * time.Millisecond
	}

	return &FileWatcher{
		watcher:   watcher,
		path:      absPath,
		events:    make(chan ChangeEvent, 16),
		errors:    make(chan error, 16),
		debouncer: &eventDebouncer{delay: debounceDelay},
	}, nil
}

// Start begins monitoring file system events.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher is already running")
	}

	fw.running = true

	go fw.eventLoop(ctx)

	return nil
}

// Close stops monitoring. Pending debounced events are dropped.
func (fw *FileWatcher) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.running = false
	fw.debouncer.stop()

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	return nil
}

// Path returns the absolute path being watched.
func (fw *FileWatcher) Path() string {
	return fw.path
}

// Events returns the channel for receiving file change events.
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Errors returns the channel for receiving watcher errors.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

func (fw *FileWatcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != fw.path {
				continue
			}

			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			default:
			}
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	changeEvent := ChangeEvent{
		Type:      mapEventType(event.Op),
		Path:      fw.path,
		Timestamp: time.Now(),
	}

	fw.debouncer.debounce(func() {
		select {
		case fw.events <- changeEvent:
		default:
		}
	})
}

func mapEventType(op fsnotify.Op) ChangeType {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return ChangeCreate
	case op&fsnotify.Write == fsnotify.Write:
		return ChangeModify
	case op&fsnotify.Remove == fsnotify.Remove:
		return ChangeDelete
	case op&fsnotify.Rename == fsnotify.Rename:
		return ChangeRename
	default:
		return ChangeModify
	}
}

// debounce runs fn once events stop arriving for the delay; the last
// event wins.
func (d *eventDebouncer) debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
	}

	d.pending = time.AfterFunc(d.delay, fn)
}

func (d *eventDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
