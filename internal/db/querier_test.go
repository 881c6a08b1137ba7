package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestSQLDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck
	return conn
}

func TestSQLQuerier_RoundTrip(t *testing.T) {
	q := NewSQLQuerier(newTestSQLDB(t))
	ctx := context.Background()
	assert.Equal(t, SQLite, q.Dialect())

	_, err := q.Exec(ctx, `CREATE TABLE t (k TEXT, v REAL)`)
	require.NoError(t, err)
	n, err := q.Exec(ctx, `INSERT INTO t (k, v) VALUES (?, ?), (?, ?)`, "a", 1.5, "b", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := q.Query(ctx, `SELECT k, v FROM t ORDER BY k`)
	require.NoError(t, err)
	defer rows.Close()

	var got []*float64
	for rows.Next() {
		var k string
		var v *float64
		require.NoError(t, rows.Scan(&k, &v))
		got = append(got, v)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)
	require.NotNil(t, got[0])
	assert.InDelta(t, 1.5, *got[0], 1e-9)
	assert.Nil(t, got[1])
}

func TestSQLQuerier_NoRows(t *testing.T) {
	q := NewSQLQuerier(newTestSQLDB(t))
	ctx := context.Background()
	_, err := q.Exec(ctx, `CREATE TABLE t (k TEXT)`)
	require.NoError(t, err)

	var k string
	err = q.QueryRow(ctx, `SELECT k FROM t`).Scan(&k)
	assert.True(t, IsNoRows(err))
}

func TestPgxQuerier_Exec(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM search_usage").
		WithArgs("2024-01-01").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	q := NewPgxQuerier(mock)
	assert.Equal(t, Postgres, q.Dialect())
	n, err := q.Exec(context.Background(), "DELETE FROM search_usage WHERE usage_date < $1", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(sql.ErrNoRows))
	assert.False(t, IsNoRows(nil))
	assert.False(t, IsNoRows(assert.AnError))
}
