package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcherReportsChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	other := filepath.Join(dir, "other.bin")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	fw, err := NewFileWatcher(path, 50*time.Millisecond)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = fw.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, fw.Start(ctx))
	assert.Error(t, fw.Start(ctx), "a second start is rejected")

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	}

	select {
	case ev := <-fw.Events():
		assert.Equal(t, fw.Path(), ev.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}

	extra := 0
	timeout := time.After(300 * time.Millisecond)

	for done := false; !done; {
		select {
		case <-fw.Events():
			extra++
		case <-timeout:
			done = true
		}
	}

	assert.Less(t, extra, 4, "writes were not debounced")
}

func TestMapEventType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op   fsnotify.Op
		want ChangeType
	}{
		{op: fsnotify.Create, want: ChangeCreate},
		{op: fsnotify.Write, want: ChangeModify},
		{op: fsnotify.Remove, want: ChangeDelete},
		{op: fsnotify.Rename, want: ChangeRename},
		{op: fsnotify.Chmod, want: ChangeModify},
		{op: fsnotify.Create | fsnotify.Write, want: ChangeCreate},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mapEventType(tt.op), tt.op.String())
	}
}
