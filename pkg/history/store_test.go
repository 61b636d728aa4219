package history

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/afkd/pkg/eventlog"
	"github.com/harun/afkd/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu       sync.Mutex
	archived []session.State
	pruned   int64
}

func (o *countingObserver) RunArchived(state session.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.archived = append(o.archived, state)
}

func (o *countingObserver) RunsPruned(n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruned += n
}

func setupStore(t *testing.T) (*Store, *countingObserver) {
	t.Helper()
	obs := &countingObserver{}
	store, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "nested", "history.db"),
		Logger:   zerolog.Nop(),
		Observer: obs,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, obs
}

func testRun(identity, runID string, ended time.Time) session.RunRecord {
	return session.RunRecord{
		RunID:             runID,
		Identity:          identity,
		Server:            "mc.example.net:25565",
		BotName:           identity + "_Bot",
		Version:           "1.21.4",
		FinalState:        session.StateFailed,
		Reason:            "kicked: banned",
		ReconnectAttempts: 2,
		StartedAt:         ended.Add(-time.Hour),
		EndedAt:           ended,
		Logs: []eventlog.Entry{
			{Seq: 1, Timestamp: ended.Add(-time.Hour), Type: eventlog.TypeInfo, Message: "connecting"},
			{Seq: 2, Timestamp: ended, Type: eventlog.TypeError, Message: "banned"},
		},
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestStore_ArchiveAndRecent(t *testing.T) {
	store, obs := setupStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	require.NoError(t, store.ArchiveRun(ctx, testRun("alice", "run-1", now.Add(-2*time.Hour))))
	require.NoError(t, store.ArchiveRun(ctx, testRun("alice", "run-2", now)))
	require.NoError(t, store.ArchiveRun(ctx, testRun("bob", "run-3", now)))

	runs, err := store.RecentRuns(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-1", runs[1].RunID)

	r := runs[0]
	assert.Equal(t, "alice", r.Identity)
	assert.Equal(t, "alice_Bot", r.BotName)
	assert.Equal(t, session.StateFailed, r.FinalState)
	assert.Equal(t, 2, r.ReconnectAttempts)
	assert.True(t, r.EndedAt.Equal(now))
	require.Len(t, r.Logs, 2)
	assert.Equal(t, eventlog.Cursor(2), r.Logs[1].Seq)
	assert.Equal(t, eventlog.TypeError, r.Logs[1].Type)
	assert.Equal(t, "banned", r.Logs[1].Message)

	obs.mu.Lock()
	assert.Len(t, obs.archived, 3)
	obs.mu.Unlock()
}

func TestStore_ArchiveReplacesSameRun(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	run := testRun("alice", "run-1", now)
	require.NoError(t, store.ArchiveRun(ctx, run))

	run.FinalState = session.StateDisconnected
	run.Logs = run.Logs[:1]
	require.NoError(t, store.ArchiveRun(ctx, run))

	runs, err := store.RecentRuns(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, session.StateDisconnected, runs[0].FinalState)
	assert.Len(t, runs[0].Logs, 1)
}

func TestStore_RecentRunsLimit(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.ArchiveRun(ctx, testRun("alice", fmt.Sprintf("run-%d", i), now.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := store.RecentRuns(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].RunID)

	runs, err = store.RecentRuns(ctx, "nobody", 3)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_Prune(t *testing.T) {
	store, obs := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.ArchiveRun(ctx, testRun("alice", "old", now.Add(-48*time.Hour))))
	require.NoError(t, store.ArchiveRun(ctx, testRun("alice", "new", now)))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := store.RecentRuns(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].RunID)

	var orphans int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM log_entries WHERE run_id = 'old'`).Scan(&orphans))
	assert.Zero(t, orphans)

	obs.mu.Lock()
	assert.Equal(t, int64(1), obs.pruned)
	obs.mu.Unlock()
}

func TestPruner(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.ArchiveRun(ctx, testRun("alice", "old", now.Add(-10*24*time.Hour))))
	require.NoError(t, store.ArchiveRun(ctx, testRun("alice", "new", now)))

	p, err := NewPruner(store, "", 7*24*time.Hour, zerolog.Nop())
	require.NoError(t, err)

	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, p.Start())
	assert.Error(t, p.Start())
	require.NoError(t, p.Stop(ctx))
	assert.Error(t, p.Stop(ctx))
}

func TestNewPruner_Validation(t *testing.T) {
	store, _ := setupStore(t)

	_, err := NewPruner(nil, "", 0, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewPruner(store, "every tuesday", 0, zerolog.Nop())
	assert.Error(t, err)

	p, err := NewPruner(store, "", 0, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultPruneSchedule, p.schedule)
	assert.Equal(t, DefaultRetention, p.retention)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 3 * * *"))
	assert.NoError(t, ValidateSchedule("*/15 * * * *"))
	assert.Error(t, ValidateSchedule("0 0 3 * * *"))
	assert.Error(t, ValidateSchedule(""))
}
