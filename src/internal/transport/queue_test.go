package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/howmanysmall/wirefile/src/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSocket struct {
	got   []byte
	limit int
}

func (s *sliceSocket) Fd() int {
	return 1000
}

func (s *sliceSocket) Write(p []byte) (int, error) {
	n := len(p)
	if s.limit >= 0 && n > s.limit {
		n = s.limit
	}

	s.limit -= n
	s.got = append(s.got, p[:n]...)

	return n, nil
}

func newTransfer(t *testing.T, content string) *core.FileTransfer {
	t.Helper()

	path := filepath.Join(t.TempDir(), "item.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = f.Close()
	})

	ft, err := core.NewFileTransfer(f, core.WithZeroCopy(core.DisabledZeroCopy()))
	require.NoError(t, err)

	return ft
}

func TestWriteQueueOrder(t *testing.T) {
	t.Parallel()

	q := NewWriteQueue()
	assert.True(t, q.Empty())
	assert.Nil(t, q.Head())
	assert.Nil(t, q.Pop())

	ft := newTransfer(t, "file")

	q.PushBuffer([]byte("a"))
	q.PushTransfer(ft)
	q.PushBuffer([]byte("c"))
	require.Equal(t, 3, q.Len())

	first := q.Pop()
	assert.Equal(t, ItemBuffer, first.Kind())
	assert.Equal(t, []byte("a"), first.Buffered())
	assert.Nil(t, first.Transfer())

	second := q.Head()
	assert.Equal(t, ItemFile, second.Kind())
	assert.Same(t, ft, second.Transfer())
	assert.Equal(t, "file", second.Kind().String())

	var kinds []ItemKind
	q.Drain(func(it *Item) {
		kinds = append(kinds, it.Kind())
	})

	assert.Equal(t, []ItemKind{ItemFile, ItemBuffer}, kinds)
	assert.True(t, q.Empty())
}

func TestItemWriteBufferPartial(t *testing.T) {
	t.Parallel()

	it := &Item{kind: ItemBuffer, buf: []byte("hello world")}
	sock := &sliceSocket{limit: 5}

	done, err := it.writeBuffer(sock)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, []byte(" world"), it.Buffered())

	sock.limit = -1

	done, err = it.writeBuffer(sock)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "hello world", string(sock.got))
}
