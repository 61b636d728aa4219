// Package history archives ended session runs, with their final activity
// log, in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/afkd/internal/tracing"
	"github.com/harun/afkd/pkg/eventlog"
	"github.com/harun/afkd/pkg/session"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Run is one archived session run.
type Run struct {
	RunID             string           `json:"runId"`
	Identity          string           `json:"identity"`
	Server            string           `json:"server"`
	BotName           string           `json:"botName"`
	Version           string           `json:"version"`
	FinalState        session.State    `json:"finalState"`
	Reason            string           `json:"reason,omitempty"`
	ReconnectAttempts int              `json:"reconnectAttempts"`
	StartedAt         time.Time        `json:"startedAt"`
	EndedAt           time.Time        `json:"endedAt"`
	Logs              []eventlog.Entry `json:"logs"`
}

// Observer is notified of archive activity. *metrics.Metrics satisfies it.
type Observer interface {
	RunArchived(state session.State)
	RunsPruned(n int64)
}

// Config holds store configuration
type Config struct {
	Path     string
	Logger   zerolog.Logger
	Observer Observer
}

// Store is a SQLite-backed run archive. It implements session.Archiver.
type Store struct {
	db       *sql.DB
	logger   zerolog.Logger
	observer Observer
}

var _ session.Archiver = (*Store)(nil)

// Open opens or creates the database at cfg.Path
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger, observer: cfg.Observer}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.Path).Msg("History store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			identity TEXT NOT NULL,
			server TEXT NOT NULL,
			bot_name TEXT NOT NULL,
			version TEXT NOT NULL,
			final_state TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			reconnect_attempts INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_identity ON runs(identity, ended_at);
		CREATE INDEX IF NOT EXISTS idx_runs_ended ON runs(ended_at);

		CREATE TABLE IF NOT EXISTS log_entries (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			message TEXT NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// ArchiveRun stores an ended run and its log entries in one transaction.
// Archiving the same run twice replaces the earlier copy.
func (s *Store) ArchiveRun(ctx context.Context, run session.RunRecord) (err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerHistory, "history.archive",
		attribute.String("identity", run.Identity),
		attribute.String("run_id", run.RunID),
		attribute.Int("log_entries", len(run.Logs)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, run.RunID); err != nil {
		return fmt.Errorf("failed to replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, identity, server, bot_name, version, final_state, reason,
			reconnect_attempts, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Identity, run.Server, run.BotName, run.Version, string(run.FinalState),
		run.Reason, run.ReconnectAttempts, run.StartedAt.UnixMilli(), run.EndedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO log_entries (run_id, seq, ts, type, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range run.Logs {
		if _, err := stmt.ExecContext(ctx, run.RunID, uint64(e.Seq), e.Timestamp.UnixMilli(), string(e.Type), e.Message); err != nil {
			return fmt.Errorf("failed to insert log entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	if s.observer != nil {
		s.observer.RunArchived(run.FinalState)
	}
	s.logger.Debug().Str("identity", run.Identity).Str("run_id", run.RunID).Str("state", string(run.FinalState)).Msg("Run archived")
	return nil
}

// RecentRuns returns the identity's most recent runs, newest first, with
// their log entries. limit is clamped to [1, MaxLimit]; zero means
// DefaultLimit.
func (s *Store) RecentRuns(ctx context.Context, identity string, limit int) ([]Run, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, identity, server, bot_name, version, final_state, reason,
			reconnect_attempts, started_at, ended_at
		FROM runs
		WHERE identity = ?
		ORDER BY ended_at DESC, rowid DESC
		LIMIT ?`, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var (
			r                Run
			state            string
			started, endedMs int64
		)
		if err := rows.Scan(&r.RunID, &r.Identity, &r.Server, &r.BotName, &r.Version, &state, &r.Reason,
			&r.ReconnectAttempts, &started, &endedMs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.FinalState = session.State(state)
		r.StartedAt = time.UnixMilli(started)
		r.EndedAt = time.UnixMilli(endedMs)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		logs, err := s.logs(ctx, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Logs = logs
	}
	return runs, nil
}

func (s *Store) logs(ctx context.Context, runID string) ([]eventlog.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, ts, type, message FROM log_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	entries := []eventlog.Entry{}
	for rows.Next() {
		var (
			e   eventlog.Entry
			seq uint64
			ts  int64
			typ string
		)
		if err := rows.Scan(&seq, &ts, &typ, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Seq = eventlog.Cursor(seq)
		e.Timestamp = time.UnixMilli(ts)
		e.Type = eventlog.EntryType(typ)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes runs that ended before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerHistory, "history.prune")
	defer func() { tracing.EndSpan(span, err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE ended_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}

	if s.observer != nil {
		s.observer.RunsPruned(n)
	}
	span.SetAttributes(attribute.Int64("pruned", n))
	return n, nil
}
