package transport

import (
	"github.com/howmanysmall/wirefile/src/internal/core"
)

// ItemKind distinguishes the entries of a write queue.
type ItemKind int

// Queue item kinds
const (
	ItemBuffer ItemKind = iota
	ItemFile
)

func (k ItemKind) String() string {
	switch k {
	case ItemBuffer:
		return "buffer"
	case ItemFile:
		return "file"
	default:
		return "unknown"
	}
}

// Item is one ordered slot of a write queue: either bytes the caller wrote
// or a file transfer.
type Item struct {
	kind     ItemKind
	buf      []byte
	transfer *core.FileTransfer
}

// Kind returns the item kind.
func (it *Item) Kind() ItemKind {
	return it.kind
}

// Buffered returns the bytes of a buffer item not yet written.
func (it *Item) Buffered() []byte {
	return it.buf
}

// Transfer returns the transfer of a file item, nil for buffers.
func (it *Item) Transfer() *core.FileTransfer {
	return it.transfer
}

// WriteQueue is a FIFO of pending writes. Items leave only from the head.
type WriteQueue struct {
	items []*Item
}

// NewWriteQueue creates an empty queue.
func NewWriteQueue() *WriteQueue {
	return &WriteQueue{}
}

// PushBuffer appends p. The caller must not modify p afterwards.
func (q *WriteQueue) PushBuffer(p []byte) {
	q.items = append(q.items, &Item{kind: ItemBuffer, buf: p})
}

// PushTransfer appends a file transfer.
func (q *WriteQueue) PushTransfer(t *core.FileTransfer) {
	q.items = append(q.items, &Item{kind: ItemFile, transfer: t})
}

// Head returns the oldest item, or nil if the queue is empty.
func (q *WriteQueue) Head() *Item {
	if len(q.items) == 0 {
		return nil
	}

	return q.items[0]
}

// Pop removes the oldest item.
func (q *WriteQueue) Pop() *Item {
	if len(q.items) == 0 {
		return nil
	}

	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	if len(q.items) == 0 {
		q.items = nil
	}

	return head
}

// Len returns the number of queued items.
func (q *WriteQueue) Len() int {
	return len(q.items)
}

// Empty reports whether nothing is queued.
func (q *WriteQueue) Empty() bool {
	return len(q.items) == 0
}

// Drain removes every item in order, passing each to fn.
func (q *WriteQueue) Drain(fn func(*Item)) {
	items := q.items
	q.items = nil

	for _, it := range items {
		fn(it)
	}
}

// writeBuffer writes as much of a buffer item as the socket takes and
// reports whether the item is exhausted.
func (it *Item) writeBuffer(sock core.Socket) (bool, error) {
	for len(it.buf) > 0 {
		n, err := sock.Write(it.buf)
		it.buf = it.buf[n:]

		if err != nil {
			return false, err
		}

		if n == 0 {
			return false, nil
		}
	}

	return true, nil
}
