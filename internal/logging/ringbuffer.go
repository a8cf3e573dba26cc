package logging

import (
	"os"
	"sync"
)

// RingBuffer keeps the most recent N bytes written to it.
type RingBuffer struct {
	mu    sync.Mutex
	data  []byte
	next  int
	total int64
}

// NewRingBuffer allocates a buffer of size bytes (4MB when size <= 0).
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 4 * 1024 * 1024
	}
	return &RingBuffer{data: make([]byte, size)}
}

// Write never fails; older bytes are overwritten once the buffer is full.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	rb.total += int64(n)
	size := len(rb.data)
	if n >= size {
		copy(rb.data, p[n-size:])
		rb.next = 0
		return n, nil
	}
	written := copy(rb.data[rb.next:], p)
	if written < n {
		copy(rb.data, p[written:])
	}
	rb.next = (rb.next + n) % size
	return n, nil
}

// Len returns how many bytes are currently retained.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.total < int64(len(rb.data)) {
		return int(rb.total)
	}
	return len(rb.data)
}

// Bytes returns the retained bytes oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.total < int64(len(rb.data)) {
		return append([]byte(nil), rb.data[:rb.total]...)
	}
	out := make([]byte, 0, len(rb.data))
	out = append(out, rb.data[rb.next:]...)
	return append(out, rb.data[:rb.next]...)
}

// DumpToFile writes Bytes to path with 0600 permissions.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
