package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries a log retains when no capacity is given.
const DefaultCapacity = 50

// EntryType categorizes a log entry
type EntryType string

const (
	TypeInfo    EntryType = "info"
	TypeWarning EntryType = "warning"
	TypeError   EntryType = "error"
	TypeChat    EntryType = "chat"
	TypeEvent   EntryType = "event"
	TypeCommand EntryType = "command"
	TypeDebug   EntryType = "debug"
)

// Valid reports whether t is one of the known entry types
func (t EntryType) Valid() bool {
	switch t {
	case TypeInfo, TypeWarning, TypeError, TypeChat, TypeEvent, TypeCommand, TypeDebug:
		return true
	}
	return false
}

// Cursor marks a position in the log. The zero cursor precedes every entry.
type Cursor uint64

// Entry is a single timestamped activity record
type Entry struct {
	Seq       Cursor    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Type      EntryType `json:"type"`
	Message   string    `json:"message"`
}

// Log is a fixed-capacity, append-only activity log. Once full, the oldest
// entry is evicted for each new one. A Log has one writer and any number of
// concurrent readers.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	head    int // index of the oldest retained entry
	count   int
	seq     Cursor
	now     func() time.Time
}

// New creates a log holding at most capacity entries
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries: make([]Entry, capacity),
		now:     time.Now,
	}
}

// Append records a new entry and returns it
func (l *Log) Append(typ EntryType, message string) Entry {
	if !typ.Valid() {
		typ = TypeInfo
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	entry := Entry{
		Seq:       l.seq,
		Timestamp: l.now(),
		Type:      typ,
		Message:   message,
	}

	capacity := len(l.entries)
	if l.count < capacity {
		l.entries[(l.head+l.count)%capacity] = entry
		l.count++
		return entry
	}

	// Full: overwrite the oldest slot and advance the head.
	l.entries[l.head] = entry
	l.head = (l.head + 1) % capacity
	return entry
}

// ReadSince returns the retained entries appended after cursor, oldest first,
// and the cursor to pass on the next call. Calling it again with the returned
// cursor and no intervening Append yields no entries. The returned cursor is
// never lower than the one passed in.
func (l *Log) ReadSince(cursor Cursor) ([]Entry, Cursor) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cursor >= l.seq {
		return nil, cursor
	}

	oldest := l.seq - Cursor(l.count) + 1
	start := cursor + 1
	if start < oldest {
		start = oldest
	}

	n := int(l.seq - start + 1)
	out := make([]Entry, 0, n)
	offset := l.count - n
	for i := 0; i < n; i++ {
		out = append(out, l.entries[(l.head+offset+i)%len(l.entries)])
	}
	return out, l.seq
}

// Tail returns up to n of the most recent entries, oldest first
func (l *Log) Tail(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || l.count == 0 {
		return nil
	}
	if n > l.count {
		n = l.count
	}

	out := make([]Entry, 0, n)
	offset := l.count - n
	for i := 0; i < n; i++ {
		out = append(out, l.entries[(l.head+offset+i)%len(l.entries)])
	}
	return out
}

// Cursor returns the cursor positioned after the newest entry
func (l *Log) Cursor() Cursor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Len returns the number of retained entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Cap returns the maximum number of retained entries
func (l *Log) Cap() int {
	return len(l.entries)
}
