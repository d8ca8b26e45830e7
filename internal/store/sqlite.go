package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extract_attempts (
	id            TEXT PRIMARY KEY,
	source_id     TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	status        TEXT NOT NULL,
	lines_scanned INTEGER NOT NULL DEFAULT 0,
	matched       INTEGER NOT NULL DEFAULT 0,
	malformed     INTEGER NOT NULL DEFAULT 0,
	elapsed_ms    INTEGER NOT NULL DEFAULT 0,
	fail_reason   TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_attempts_source ON extract_attempts(source_id);
CREATE INDEX IF NOT EXISTS idx_attempts_strategy ON extract_attempts(strategy);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON extract_attempts(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordAttempt(ctx context.Context, a *Attempt) error {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extract_attempts
		 (id, source_id, strategy, status, lines_scanned, matched, malformed, elapsed_ms, fail_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SourceID, a.Strategy, a.Status,
		a.LinesScanned, a.Matched, a.Malformed, a.Elapsed.Milliseconds(),
		nullable(a.FailReason), a.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert attempt")
}

func (s *SQLiteStore) RecordAttemptBatch(ctx context.Context, attempts []Attempt) (int64, error) {
	if len(attempts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO extract_attempts
		 (id, source_id, strategy, status, lines_scanned, matched, malformed, elapsed_ms, fail_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare batch")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, a := range attempts {
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), a.SourceID, a.Strategy, a.Status,
			a.LinesScanned, a.Matched, a.Malformed, a.Elapsed.Milliseconds(),
			nullable(a.FailReason), now,
		); err != nil {
			return n, eris.Wrap(err, "sqlite: batch insert attempt")
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batch")
	}
	return n, nil
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	query := `SELECT id, source_id, strategy, status, lines_scanned, matched, malformed, elapsed_ms, fail_reason, created_at
	          FROM extract_attempts WHERE 1=1`
	var args []any

	if filter.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, filter.SourceID)
	}
	if filter.Strategy != "" {
		query += ` AND strategy = ?`
		args = append(args, filter.Strategy)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attempts")
	}
	defer rows.Close() //nolint:errcheck

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var elapsedMs int64
		var failReason sql.NullString
		if err := rows.Scan(&a.ID, &a.SourceID, &a.Strategy, &a.Status,
			&a.LinesScanned, &a.Matched, &a.Malformed, &elapsedMs,
			&failReason, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		a.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		a.FailReason = failReason.String
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate attempts")
}

func (s *SQLiteStore) SummarizeAttempts(ctx context.Context, since time.Time) ([]StrategySummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strategy,
		        COUNT(*),
		        SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN status = 'partial_timeout' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
		        AVG(lines_scanned),
		        AVG(elapsed_ms)
		 FROM extract_attempts
		 WHERE created_at >= ?
		 GROUP BY strategy
		 ORDER BY strategy`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summarize attempts")
	}
	defer rows.Close() //nolint:errcheck

	var out []StrategySummary
	for rows.Next() {
		var s StrategySummary
		if err := rows.Scan(&s.Strategy, &s.Attempts, &s.Successes, &s.Partials,
			&s.Failures, &s.AvgLinesScanned, &s.AvgElapsedMs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate summaries")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
