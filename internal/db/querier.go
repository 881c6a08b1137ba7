package db

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Dialect identifies the SQL flavor a Querier speaks.
type Dialect int

const (
	// Postgres uses $N placeholders.
	Postgres Dialect = iota
	// SQLite uses ? placeholders.
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// Rows is the row iterator shared by pgx and database/sql results.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...any) error
}

// Querier runs parameterized statements against either backend.
type Querier interface {
	Dialect() Dialect
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// IsNoRows reports whether err signals an empty single-row result from
// either driver.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// NewPgxQuerier adapts a pgx pool.
func NewPgxQuerier(pool Pool) Querier {
	return &pgxQuerier{pool: pool}
}

type pgxQuerier struct {
	pool Pool
}

func (q *pgxQuerier) Dialect() Dialect { return Postgres }

func (q *pgxQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "db: query")
	}
	return rows, nil
}

func (q *pgxQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return q.pool.QueryRow(ctx, query, args...)
}

func (q *pgxQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := q.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "db: exec")
	}
	return tag.RowsAffected(), nil
}

// NewSQLQuerier adapts a database/sql handle (used for SQLite).
func NewSQLQuerier(conn *sql.DB) Querier {
	return &sqlQuerier{db: conn}
}

type sqlQuerier struct {
	db *sql.DB
}

func (q *sqlQuerier) Dialect() Dialect { return SQLite }

func (q *sqlQuerier) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "db: query")
	}
	return sqlRows{rows}, nil
}

func (q *sqlQuerier) QueryRow(ctx context.Context, query string, args ...any) Row {
	return q.db.QueryRowContext(ctx, query, args...)
}

func (q *sqlQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "db: exec")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "db: rows affected")
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}
