package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bid-intel/internal/db"
	"github.com/sells-group/bid-intel/internal/model"
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
CREATE TABLE IF NOT EXISTS bids (
	id                       BIGSERIAL PRIMARY KEY,
	contract_number          TEXT NOT NULL,
	letting_date             TEXT NOT NULL,
	letting_year             INTEGER NOT NULL,
	county                   TEXT,
	district                 TEXT,
	municipality             TEXT,
	item_number              TEXT NOT NULL,
	item_description         TEXT NOT NULL DEFAULT '',
	unit                     TEXT NOT NULL DEFAULT '',
	quantity                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	unit_price               DOUBLE PRECISION NOT NULL DEFAULT 0,
	extension                DOUBLE PRECISION NOT NULL DEFAULT 0,
	engineers_est_unit_price DOUBLE PRECISION,
	bidder_name              TEXT NOT NULL,
	bidder_number            TEXT NOT NULL DEFAULT '',
	bidder_rank              INTEGER NOT NULL DEFAULT 0,
	item_rank                INTEGER NOT NULL DEFAULT 0,
	is_winner                BOOLEAN NOT NULL DEFAULT false,
	is_low_item              BOOLEAN NOT NULL DEFAULT false,
	total_bid_amount         DOUBLE PRECISION NOT NULL DEFAULT 0,
	bid_spread_pct           DOUBLE PRECISION,
	num_bidders              INTEGER NOT NULL DEFAULT 0,
	UNIQUE (contract_number, bidder_name, item_number)
);

CREATE INDEX IF NOT EXISTS idx_bids_item_number ON bids(item_number);
CREATE INDEX IF NOT EXISTS idx_bids_bidder_name ON bids(bidder_name);
CREATE INDEX IF NOT EXISTS idx_bids_contract_number ON bids(contract_number);
CREATE INDEX IF NOT EXISTS idx_bids_letting_year ON bids(letting_year);
CREATE INDEX IF NOT EXISTS idx_bids_county ON bids(county);
CREATE INDEX IF NOT EXISTS idx_bids_district ON bids(district);

CREATE TABLE IF NOT EXISTS users (
	id                  BIGSERIAL PRIMARY KEY,
	email               TEXT NOT NULL UNIQUE,
	name                TEXT,
	tier                TEXT NOT NULL DEFAULT 'free',
	subscription_status TEXT NOT NULL DEFAULT 'none',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	user_id    BIGINT NOT NULL REFERENCES users(id),
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);

CREATE TABLE IF NOT EXISTS search_usage (
	user_id      BIGINT NOT NULL,
	usage_date   TEXT NOT NULL,
	search_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, usage_date)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

func (s *PostgresStore) Querier() db.Querier {
	return db.NewPgxQuerier(s.pool)
}

var bidMerge = db.Merge{
	Table:   "bids",
	Columns: model.BidColumns,
	Keys:    model.BidConflictKeys,
}

// InsertBids stages the batch with COPY and merges it on the bid key.
func (s *PostgresStore) InsertBids(ctx context.Context, bids []model.BidRecord) (int64, error) {
	if len(bids) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(bids))
	for i, b := range bids {
		rows[i] = b.Values()
	}

	n, err := bidMerge.Run(ctx, s.pool, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert bids")
	}
	return n, nil
}
