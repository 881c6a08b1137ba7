package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bid-intel/internal/db"
	"github.com/sells-group/bid-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS bids (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	contract_number          TEXT NOT NULL,
	letting_date             TEXT NOT NULL,
	letting_year             INTEGER NOT NULL,
	county                   TEXT,
	district                 TEXT,
	municipality             TEXT,
	item_number              TEXT NOT NULL,
	item_description         TEXT NOT NULL DEFAULT '',
	unit                     TEXT NOT NULL DEFAULT '',
	quantity                 REAL NOT NULL DEFAULT 0,
	unit_price               REAL NOT NULL DEFAULT 0,
	extension                REAL NOT NULL DEFAULT 0,
	engineers_est_unit_price REAL,
	bidder_name              TEXT NOT NULL,
	bidder_number            TEXT NOT NULL DEFAULT '',
	bidder_rank              INTEGER NOT NULL DEFAULT 0,
	item_rank                INTEGER NOT NULL DEFAULT 0,
	is_winner                INTEGER NOT NULL DEFAULT 0,
	is_low_item              INTEGER NOT NULL DEFAULT 0,
	total_bid_amount         REAL NOT NULL DEFAULT 0,
	bid_spread_pct           REAL,
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
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	email               TEXT NOT NULL UNIQUE,
	name                TEXT,
	tier                TEXT NOT NULL DEFAULT 'free',
	subscription_status TEXT NOT NULL DEFAULT 'none',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	expires_at TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);

CREATE TABLE IF NOT EXISTS search_usage (
	user_id      INTEGER NOT NULL,
	usage_date   TEXT NOT NULL,
	search_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, usage_date)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Querier() db.Querier {
	return db.NewSQLQuerier(s.db)
}

func (s *SQLiteStore) InsertBids(ctx context.Context, bids []model.BidRecord) (int64, error) {
	if len(bids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert bids")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertBid())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert bid")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, b := range bids {
		res, err := stmt.ExecContext(ctx, b.Values()...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert bid %s/%s/%s", b.ContractNumber, b.BidderName, b.ItemNumber)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert bids")
	}
	return n, nil
}

func sqliteUpsertBid() string {
	conflict := make(map[string]bool, len(model.BidConflictKeys))
	for _, k := range model.BidConflictKeys {
		conflict[k] = true
	}

	marks := make([]string, len(model.BidColumns))
	var sets []string
	for i, c := range model.BidColumns {
		marks[i] = "?"
		if !conflict[c] {
			sets = append(sets, c+" = excluded."+c)
		}
	}

	return "INSERT INTO bids (" + strings.Join(model.BidColumns, ", ") + ") VALUES (" +
		strings.Join(marks, ", ") + ") ON CONFLICT (" + strings.Join(model.BidConflictKeys, ", ") +
		") DO UPDATE SET " + strings.Join(sets, ", ")
}
