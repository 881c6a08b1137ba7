// Package pricing aggregates bid records into unit price statistics, contractor
// performance, contract cross-tabs, and market-level analytics. Every
// operation is a read against the bids table through db.Querier.
package pricing

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bid-intel/internal/apperr"
	"github.com/sells-group/bid-intel/internal/db"
)

// Rows with a non-positive price or quantity never contribute to a price.
const pricedRows = "unit_price > 0 AND quantity > 0"

// MinGeoBids is the smallest group reported by PriceByItemAndGeo.
const MinGeoBids = 3

const defaultMaxResults = 500

// Options configures an Engine.
type Options struct {
	// WinningBidsOnly restricts every price aggregate to winning bids.
	WinningBidsOnly bool
	// MaxResults caps every list regardless of the caller's request.
	MaxResults int
}

// Engine runs the fixed set of aggregations over the bids table.
type Engine struct {
	q           db.Querier
	winnersOnly bool
	maxResults  int
}

// New creates an Engine reading through q.
func New(q db.Querier, opts Options) *Engine {
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	return &Engine{q: q, winnersOnly: opts.WinningBidsOnly, maxResults: opts.MaxResults}
}

// WinnersOnly reports whether price aggregates are restricted to winning bids.
func (e *Engine) WinnersOnly() bool { return e.winnersOnly }

// Cap bounds a requested list size by the server maximum.
func (e *Engine) Cap(limit int) int {
	if limit <= 0 || limit > e.maxResults {
		return e.maxResults
	}
	return limit
}

// ItemPrice is the price profile of one pay item.
type ItemPrice struct {
	ItemNumber       string   `json:"item_number"`
	Description      string   `json:"description"`
	Unit             string   `json:"unit"`
	BidCount         int      `json:"bid_count"`
	WeightedAvgPrice *float64 `json:"weighted_avg_price"`
	SimpleAvgPrice   float64  `json:"simple_avg_price"`
	MinPrice         float64  `json:"min_price"`
	MaxPrice         float64  `json:"max_price"`
	TotalQuantity    float64  `json:"total_quantity"`
	TotalValue       float64  `json:"total_value"`
}

// PricingSummary is a price profile for one group (a year, county or district).
type PricingSummary struct {
	Key              string   `json:"key"`
	BidCount         int      `json:"bid_count"`
	WeightedAvgPrice *float64 `json:"weighted_avg_price"`
	MinPrice         float64  `json:"min_price"`
	MaxPrice         float64  `json:"max_price"`
	TotalQuantity    float64  `json:"total_quantity"`
	TotalValue       float64  `json:"total_value"`
}

// Dimension is a geographic grouping column.
type Dimension string

const (
	DimCounty   Dimension = "county"
	DimDistrict Dimension = "district"
)

// ParseDimension validates a user supplied dimension name.
func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case DimCounty, DimDistrict:
		return Dimension(s), nil
	default:
		return "", apperr.Validation("unknown dimension %q", s)
	}
}

const itemPriceColumns = `item_number, MAX(item_description), MAX(unit), COUNT(*),
	SUM(unit_price * quantity) / NULLIF(SUM(quantity), 0),
	AVG(unit_price), MIN(unit_price), MAX(unit_price),
	COALESCE(SUM(quantity), 0), COALESCE(SUM(unit_price * quantity), 0)`

const summaryColumns = `COUNT(*),
	SUM(unit_price * quantity) / NULLIF(SUM(quantity), 0),
	MIN(unit_price), MAX(unit_price),
	COALESCE(SUM(quantity), 0), COALESCE(SUM(unit_price * quantity), 0)`

func scanItemPrice(row db.Row) (*ItemPrice, error) {
	var p ItemPrice
	err := row.Scan(&p.ItemNumber, &p.Description, &p.Unit, &p.BidCount,
		&p.WeightedAvgPrice, &p.SimpleAvgPrice, &p.MinPrice, &p.MaxPrice,
		&p.TotalQuantity, &p.TotalValue)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanSummary(row db.Row) (PricingSummary, error) {
	var s PricingSummary
	err := row.Scan(&s.Key, &s.BidCount, &s.WeightedAvgPrice, &s.MinPrice, &s.MaxPrice,
		&s.TotalQuantity, &s.TotalValue)
	return s, err
}

// PriceByItem returns the price profile for the item matched by f. When a
// substring match hits several items, the one with the most bids wins (ties
// by item number). It returns nil, nil when no priced rows match.
func (e *Engine) PriceByItem(ctx context.Context, f Filter) (*ItemPrice, error) {
	f.ItemNumber = strings.TrimSpace(f.ItemNumber)
	if f.ItemNumber == "" {
		return nil, apperr.Validation("item number is required")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	b := f.where(e.q.Dialect(), e.winnersOnly).Where(pricedRows)
	query := `SELECT ` + itemPriceColumns + ` FROM bids` + b.Clause() + `
		GROUP BY item_number
		ORDER BY COUNT(*) DESC, item_number
		LIMIT 1`

	p, err := scanItemPrice(e.q.QueryRow(ctx, query, b.Args()...))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "pricing: price item %s", f.ItemNumber)
	}

	zap.L().Debug("pricing: item priced",
		zap.String("query", f.ItemNumber),
		zap.String("item_number", p.ItemNumber),
		zap.Int("bid_count", p.BidCount),
	)
	return p, nil
}

// PriceItems returns one profile per item with at least minOccurrences priced
// bids, most-bid first.
func (e *Engine) PriceItems(ctx context.Context, f Filter, minOccurrences, limit int) ([]ItemPrice, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if minOccurrences < 1 {
		minOccurrences = 1
	}

	b := f.where(e.q.Dialect(), e.winnersOnly).Where(pricedRows)
	query := `SELECT ` + itemPriceColumns + ` FROM bids` + b.Clause() + `
		GROUP BY item_number
		HAVING COUNT(*) >= ` + b.Arg(minOccurrences) + `
		ORDER BY COUNT(*) DESC, item_number
		LIMIT ` + b.Arg(e.Cap(limit))

	rows, err := e.q.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: price items")
	}
	defer rows.Close()

	out := []ItemPrice{}
	for rows.Next() {
		p, err := scanItemPrice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "pricing: scan item price")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "pricing: iterate item prices")
}

// PriceByItemAndYear groups priced rows by letting year, oldest first.
func (e *Engine) PriceByItemAndYear(ctx context.Context, f Filter) ([]PricingSummary, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	b := f.where(e.q.Dialect(), e.winnersOnly).Where(pricedRows).Where("letting_year > 0")
	query := `SELECT CAST(letting_year AS TEXT), ` + summaryColumns + ` FROM bids` + b.Clause() + `
		GROUP BY letting_year
		ORDER BY letting_year`

	return e.summaries(ctx, "year", query, b.Args())
}

// PriceByItemAndGeo groups priced rows by county or district. Groups with
// fewer than MinGeoBids bids are left out.
func (e *Engine) PriceByItemAndGeo(ctx context.Context, f Filter, dim Dimension) ([]PricingSummary, error) {
	col, err := ParseDimension(string(dim))
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	c := string(col)
	b := f.where(e.q.Dialect(), e.winnersOnly).Where(pricedRows).
		Where(c + " IS NOT NULL").Where(c + " <> ''")
	query := `SELECT ` + c + `, ` + summaryColumns + ` FROM bids` + b.Clause() + `
		GROUP BY ` + c + `
		HAVING COUNT(*) >= ` + b.Arg(MinGeoBids) + `
		ORDER BY COUNT(*) DESC, ` + c

	return e.summaries(ctx, c, query, b.Args())
}

func (e *Engine) summaries(ctx context.Context, group, query string, args []any) ([]PricingSummary, error) {
	rows, err := e.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "pricing: summarize by %s", group)
	}
	defer rows.Close()

	out := []PricingSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "pricing: scan %s summary", group)
		}
		out = append(out, s)
	}
	return out, eris.Wrapf(rows.Err(), "pricing: iterate %s summaries", group)
}
