package resilience

import (
	"context"
	"errors"

	"github.com/sells-group/bid-intel/internal/apperr"
	"github.com/sells-group/bid-intel/internal/db"
)

// GuardQuerier routes every statement on q through b. While b is open,
// statements fail immediately with a StoreUnavailable error.
func GuardQuerier(q db.Querier, b *Breaker) db.Querier {
	return &guarded{inner: q, b: b}
}

type guarded struct {
	inner db.Querier
	b     *Breaker
}

func (g *guarded) Dialect() db.Dialect { return g.inner.Dialect() }

func (g *guarded) Query(ctx context.Context, query string, args ...any) (db.Rows, error) {
	t, err := g.b.Allow()
	if err != nil {
		return nil, unavailable(err)
	}
	rows, err := g.inner.Query(ctx, query, args...)
	g.b.Record(t, err)
	return rows, err
}

func (g *guarded) QueryRow(ctx context.Context, query string, args ...any) db.Row {
	t, err := g.b.Allow()
	if err != nil {
		return errRow{unavailable(err)}
	}
	return &guardedRow{row: g.inner.QueryRow(ctx, query, args...), b: g.b, t: t}
}

func (g *guarded) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	t, err := g.b.Allow()
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := g.inner.Exec(ctx, query, args...)
	g.b.Record(t, err)
	return n, err
}

// guardedRow records the outcome at Scan, where pgx reports row errors.
type guardedRow struct {
	row db.Row
	b   *Breaker
	t   Ticket
}

func (r *guardedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	r.b.Record(r.t, err)
	return err
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func unavailable(err error) error {
	if errors.Is(err, ErrOpen) {
		return apperr.Wrap(err, apperr.KindStoreUnavailable, "bid store unavailable")
	}
	return err
}
