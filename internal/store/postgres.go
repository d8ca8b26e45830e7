package store

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mrms-extract/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. Attempt
// inserts dominate the write load.
var preparedStatements = map[string]string{
	"insert_attempt": `INSERT INTO extract_attempts
		(id, source_id, strategy, status, lines_scanned, matched, malformed, elapsed_ms, fail_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extract_attempts (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_id     TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	status        TEXT NOT NULL,
	lines_scanned BIGINT NOT NULL DEFAULT 0,
	matched       INTEGER NOT NULL DEFAULT 0,
	malformed     BIGINT NOT NULL DEFAULT 0,
	elapsed_ms    BIGINT NOT NULL DEFAULT 0,
	fail_reason   TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_source ON extract_attempts(source_id);
CREATE INDEX IF NOT EXISTS idx_attempts_strategy ON extract_attempts(strategy);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON extract_attempts(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Ping checks connectivity for the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, a *Attempt) error {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO extract_attempts
		 (id, source_id, strategy, status, lines_scanned, matched, malformed, elapsed_ms, fail_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.SourceID, a.Strategy, a.Status,
		a.LinesScanned, a.Matched, a.Malformed, a.Elapsed.Milliseconds(),
		nullable(a.FailReason), a.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert attempt")
}

// RecordAttemptBatch flushes attempts through COPY.
func (s *PostgresStore) RecordAttemptBatch(ctx context.Context, attempts []Attempt) (int64, error) {
	if len(attempts) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []any{
			uuid.New().String(), a.SourceID, a.Strategy, a.Status,
			a.LinesScanned, a.Matched, a.Malformed, a.Elapsed.Milliseconds(),
			nullable(a.FailReason), now,
		})
	}

	return db.CopyFrom(ctx, s.pool, "extract_attempts",
		[]string{"id", "source_id", "strategy", "status", "lines_scanned", "matched", "malformed", "elapsed_ms", "fail_reason", "created_at"},
		rows,
	)
}

func (s *PostgresStore) ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	query := `SELECT id, source_id, strategy, status, lines_scanned, matched, malformed, elapsed_ms, fail_reason, created_at
	          FROM extract_attempts WHERE 1=1`
	var args []any

	if filter.SourceID != "" {
		args = append(args, filter.SourceID)
		query += ` AND source_id = $` + strconv.Itoa(len(args))
	}
	if filter.Strategy != "" {
		args = append(args, filter.Strategy)
		query += ` AND strategy = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list attempts")
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var elapsedMs int64
		var failReason *string
		if err := rows.Scan(&a.ID, &a.SourceID, &a.Strategy, &a.Status,
			&a.LinesScanned, &a.Matched, &a.Malformed, &elapsedMs,
			&failReason, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		a.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if failReason != nil {
			a.FailReason = *failReason
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate attempts")
}

func (s *PostgresStore) SummarizeAttempts(ctx context.Context, since time.Time) ([]StrategySummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT strategy,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'success'),
		        COUNT(*) FILTER (WHERE status = 'partial_timeout'),
		        COUNT(*) FILTER (WHERE status = 'failed'),
		        COALESCE(AVG(lines_scanned), 0),
		        COALESCE(AVG(elapsed_ms), 0)
		 FROM extract_attempts
		 WHERE created_at >= $1
		 GROUP BY strategy
		 ORDER BY strategy`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summarize attempts")
	}
	defer rows.Close()

	var out []StrategySummary
	for rows.Next() {
		var s StrategySummary
		if err := rows.Scan(&s.Strategy, &s.Attempts, &s.Successes, &s.Partials,
			&s.Failures, &s.AvgLinesScanned, &s.AvgElapsedMs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate summaries")
}

