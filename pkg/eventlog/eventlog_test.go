package eventlog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndReadAll(t *testing.T) {
	l := New(10)

	l.Append(TypeInfo, "connecting")
	l.Append(TypeChat, "Steve: hi")

	entries, cursor := l.ReadSince(0)
	require.Len(t, entries, 2)
	assert.Equal(t, Cursor(2), cursor)
	assert.Equal(t, "connecting", entries[0].Message)
	assert.Equal(t, TypeChat, entries[1].Type)
	assert.Equal(t, Cursor(1), entries[0].Seq)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestLog_EvictsOldestFirst(t *testing.T) {
	const capacity = 5
	l := New(capacity)

	for i := 0; i < capacity+3; i++ {
		l.Append(TypeInfo, fmt.Sprintf("entry-%d", i))
	}

	assert.Equal(t, capacity, l.Len())

	entries, cursor := l.ReadSince(0)
	require.Len(t, entries, capacity)
	assert.Equal(t, Cursor(capacity+3), cursor)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("entry-%d", i+3), e.Message)
	}
}

func TestLog_ReadSinceIsIdempotent(t *testing.T) {
	l := New(4)
	l.Append(TypeInfo, "a")
	l.Append(TypeInfo, "b")

	_, cursor := l.ReadSince(0)

	first, c1 := l.ReadSince(cursor)
	second, c2 := l.ReadSince(cursor)
	assert.Empty(t, first)
	assert.Empty(t, second)
	assert.Equal(t, cursor, c1)
	assert.Equal(t, cursor, c2)
}

func TestLog_ReadSinceIncremental(t *testing.T) {
	l := New(3)
	l.Append(TypeInfo, "a")
	_, cursor := l.ReadSince(0)

	l.Append(TypeInfo, "b")
	l.Append(TypeInfo, "c")

	entries, next := l.ReadSince(cursor)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Message)
	assert.Equal(t, "c", entries[1].Message)
	assert.Equal(t, Cursor(3), next)
}

func TestLog_ReadSinceSkipsEvicted(t *testing.T) {
	l := New(2)
	l.Append(TypeInfo, "a")
	_, cursor := l.ReadSince(0)

	l.Append(TypeInfo, "b")
	l.Append(TypeInfo, "c")
	l.Append(TypeInfo, "d")

	entries, next := l.ReadSince(cursor)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Message)
	assert.Equal(t, "d", entries[1].Message)
	assert.Equal(t, Cursor(4), next)
}

func TestLog_CursorNeverRegresses(t *testing.T) {
	l := New(2)
	l.Append(TypeInfo, "a")

	entries, next := l.ReadSince(42)
	assert.Empty(t, entries)
	assert.Equal(t, Cursor(42), next)
}

func TestLog_Tail(t *testing.T) {
	l := New(3)
	assert.Nil(t, l.Tail(2))

	for _, m := range []string{"a", "b", "c", "d"} {
		l.Append(TypeInfo, m)
	}

	tail := l.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "c", tail[0].Message)
	assert.Equal(t, "d", tail[1].Message)
	assert.Len(t, l.Tail(10), 3)
}

func TestLog_UnknownTypeFallsBackToInfo(t *testing.T) {
	l := New(1)
	e := l.Append(EntryType("success"), "done")
	assert.Equal(t, TypeInfo, e.Type)
}

func TestLog_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
}

func TestLog_ConcurrentReaders(t *testing.T) {
	l := New(16)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var cursor Cursor
			for i := 0; i < 200; i++ {
				entries, next := l.ReadSince(cursor)
				assert.GreaterOrEqual(t, next, cursor)
				for j := 1; j < len(entries); j++ {
					assert.Equal(t, entries[j-1].Seq+1, entries[j].Seq)
				}
				cursor = next
			}
		}()
	}

	for i := 0; i < 500; i++ {
		l.Append(TypeDebug, "tick")
	}
	wg.Wait()

	assert.Equal(t, 16, l.Len())
}
