// Package store owns the bid record database: schema, migrations, and the
// ingestion write path. Readers go through the db.Querier it exposes.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bid-intel/internal/config"
	"github.com/sells-group/bid-intel/internal/db"
	"github.com/sells-group/bid-intel/internal/model"
)

// Store defines the persistence interface for bid records and the account
// tables the access gate reads.
type Store interface {
	// Querier returns the read path used by the pricing engine and account lookups.
	Querier() db.Querier

	// InsertBids upserts bid records keyed by contract, bidder and item.
	InsertBids(ctx context.Context, bids []model.BidRecord) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		st, err := NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		st, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Ping(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
