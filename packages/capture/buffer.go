package capture

import "sync"

// Buffer collects the output of one capture frame. When maxBytes is positive
// only the most recent maxBytes bytes are retained.
type Buffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
	overflow bool
}

// NewBuffer creates a buffer. maxBytes <= 0 means unbounded.
func NewBuffer(maxBytes int) *Buffer {
	return &Buffer{maxBytes: maxBytes}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if b.maxBytes > 0 && len(b.contents) > b.maxBytes {
		// keep the tail
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
		b.overflow = true
	}
	return len(p), nil
}

func (b *Buffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// String returns the retained text.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.contents)
}

// Len returns the number of retained bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contents)
}

// TotalBytes returns how many bytes were written, retained or not.
func (b *Buffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Truncated reports whether older output was dropped to honor maxBytes.
func (b *Buffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}
