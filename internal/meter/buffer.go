package meter

import "sync"

// ReadingBuffer is a thread-safe ring buffer of recent readings. Each
// DeviceManager owns one; there is no process-wide buffer. The zero value
// is not usable, construct with NewReadingBuffer.
type ReadingBuffer struct {
	mu     sync.Mutex
	buf    []Reading
	start  int
	size   int
	latest *Reading
}

// NewReadingBuffer creates a buffer retaining the most recent capacity
// readings. Capacity must be positive.
func NewReadingBuffer(capacity int) *ReadingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ReadingBuffer{buf: make([]Reading, capacity)}
}

// Append adds a reading, evicting the oldest once full.
func (b *ReadingBuffer) Append(r Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.size) % len(b.buf)
	b.buf[idx] = r
	if b.size < len(b.buf) {
		b.size++
	} else {
		b.start = (b.start + 1) % len(b.buf)
	}
	b.latest = &b.buf[idx]
}

// Latest returns the most recent reading, or false if empty.
func (b *ReadingBuffer) Latest() (Reading, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.latest == nil {
		return Reading{}, false
	}
	return *b.latest, true
}

// Recent returns up to n of the most recent readings, oldest first.
func (b *ReadingBuffer) Recent(n int) []Reading {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]Reading, 0, n)
	for i := b.size - n; i < b.size; i++ {
		out = append(out, b.buf[(b.start+i)%len(b.buf)])
	}
	return out
}

// Len returns the number of buffered readings.
func (b *ReadingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Clear drops all buffered readings.
func (b *ReadingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start, b.size, b.latest = 0, 0, nil
}
