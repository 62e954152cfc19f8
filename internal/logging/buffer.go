package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBufferCapacity bounds the in-memory log buffer served over HTTP.
const DefaultBufferCapacity = 100

// BufferEntry is one captured log record.
type BufferEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// Buffer is a bounded FIFO of recent log entries. It implements logrus.Hook so
// it can be attached to the process logger; when full, the oldest entry is
// evicted. Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	entries  []BufferEntry
}

// NewBuffer constructs a Buffer with the given capacity, falling back to
// DefaultBufferCapacity when capacity is not positive.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}

	return &Buffer{
		capacity: capacity,
		entries:  make([]BufferEntry, 0, capacity),
	}
}

// Append records an entry, evicting the oldest when the buffer is full.
func (b *Buffer) Append(entry BufferEntry) {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.capacity {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, entry)
}

// Len returns the current number of buffered entries.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.entries)
}

// Entries returns a copy of the buffered entries, oldest first.
func (b *Buffer) Entries() []BufferEntry {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]BufferEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Lines renders the buffered entries as "[timestamp] LEVEL: message" strings,
// oldest first.
func (b *Buffer) Lines() []string {
	entries := b.Entries()

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			entry.Timestamp.Format(time.RFC3339),
			entry.Level,
			entry.Message,
		))
	}
	return lines
}

// Levels implements logrus.Hook; every level is captured.
func (b *Buffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (b *Buffer) Fire(entry *logrus.Entry) error {
	b.Append(BufferEntry{
		Timestamp: entry.Time,
		Level:     strings.ToUpper(entry.Level.String()),
		Message:   entry.Message,
	})
	return nil
}
