package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mrms-extract/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_RecordAttempt(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO extract_attempts`).
		WithArgs(pgxmock.AnyArg(), "src-1", "full_scan", "success",
			int64(5000), 120, int64(2), int64(340), nil, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &Attempt{
		SourceID:     "src-1",
		Strategy:     "full_scan",
		Status:       string(model.StatusSuccess),
		LinesScanned: 5000,
		Matched:      120,
		Malformed:    2,
		Elapsed:      340 * time.Millisecond,
	}
	err := s.RecordAttempt(context.Background(), a)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordAttempt_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO extract_attempts`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	err := s.RecordAttempt(context.Background(), &Attempt{SourceID: "s", Strategy: "full_scan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert attempt")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordAttemptBatch_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"extract_attempts"},
		[]string{"id", "source_id", "strategy", "status", "lines_scanned", "matched", "malformed", "elapsed_ms", "fail_reason", "created_at"}).
		WillReturnResult(2)

	n, err := s.RecordAttemptBatch(context.Background(), []Attempt{
		{SourceID: "a", Strategy: "full_scan", Status: "success"},
		{SourceID: "b", Strategy: "full_scan", Status: "failed", FailReason: "boom"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAttempts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	reason := "wgrib2 missing"
	mock.ExpectQuery(`SELECT id, source_id, strategy, status`).
		WithArgs("src-1", 100, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source_id", "strategy", "status", "lines_scanned",
			"matched", "malformed", "elapsed_ms", "fail_reason", "created_at",
		}).AddRow("id-1", "src-1", "full_scan", "failed",
			int64(0), 0, int64(0), int64(12), &reason, now))

	got, err := s.ListAttempts(context.Background(), AttemptFilter{SourceID: "src-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wgrib2 missing", got[0].FailReason)
	assert.Equal(t, 12*time.Millisecond, got[0].Elapsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SummarizeAttempts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT strategy`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{
			"strategy", "count", "successes", "partials", "failures", "avg_lines", "avg_ms",
		}).AddRow("adaptive_locate", int64(10), int64(8), int64(1), int64(1), 2300.5, 41.2))

	got, err := s.SummarizeAttempts(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(8), got[0].Successes)
	assert.InDelta(t, 2300.5, got[0].AvgLinesScanned, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS extract_attempts`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
