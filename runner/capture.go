package runner

import (
	"sync"
)

// captureBuffer collects one output stream of a child. With a positive
// maxBytes only the most recent bytes are kept; zero keeps everything.
type captureBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newCaptureBuffer(maxBytes int) *captureBuffer {
	if maxBytes < 0 {
		maxBytes = 0
	}
	return &captureBuffer{maxBytes: maxBytes}
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)

	// Trim the front to keep the most recent bytes
	if b.maxBytes > 0 && len(b.contents) > b.maxBytes {
		b.contents = append(b.contents[:0], b.contents[len(b.contents)-b.maxBytes:]...)
	}
	return len(p), nil
}

// Bytes returns a copy of the retained output
func (b *captureBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(b.contents))
	copy(cp, b.contents)
	return cp
}

func (b *captureBuffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Truncated reports whether any output was dropped
func (b *captureBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}
