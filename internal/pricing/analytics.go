package pricing

import (
	"context"

	"github.com/rotisserie/eris"
)

// DefaultMinContracts is the TopContractors threshold used by the API.
const DefaultMinContracts = 5

// Overview holds dataset-wide counts.
type Overview struct {
	TotalContracts    int     `json:"total_contracts"`
	TotalBidRows      int     `json:"total_bid_rows"`
	UniqueContractors int     `json:"unique_contractors"`
	UniquePayItems    int     `json:"unique_pay_items"`
	Counties          int     `json:"counties"`
	LettingDates      int     `json:"letting_dates"`
	EarliestLetting   *string `json:"earliest_letting"`
	LatestLetting     *string `json:"latest_letting"`
}

// ContractorRank is one row of the most-active contractor list.
type ContractorRank struct {
	BidderName     string   `json:"bidder_name"`
	TotalContracts int      `json:"total_contracts"`
	ContractWins   int      `json:"contract_wins"`
	WinRate        float64  `json:"win_rate"`
	TotalItemBids  int      `json:"total_item_bids"`
	LowItemBids    int      `json:"low_item_bids"`
	ItemWinRate    float64  `json:"item_win_rate"`
	AvgBidAmount   *float64 `json:"avg_bid_amount"`
}

// CountyStat is bidding activity in one county.
type CountyStat struct {
	County        string `json:"county"`
	Contracts     int    `json:"contracts"`
	UniqueBidders int    `json:"unique_bidders"`
	TotalBids     int    `json:"total_bids"`
}

// ContractRow is one contract in a browse listing.
type ContractRow struct {
	ContractNumber string  `json:"contract_number"`
	LettingDate    string  `json:"letting_date"`
	District       *string `json:"district"`
	County         *string `json:"county"`
	Municipality   *string `json:"municipality"`
	NumBidders     int     `json:"num_bidders"`
}

// ContractorRow is one bidder in a browse listing.
type ContractorRow struct {
	BidderName   string  `json:"bidder_name"`
	BidderNumber string  `json:"bidder_number"`
	Contracts    int     `json:"contracts"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"win_rate"`
}

// Overview returns dataset-wide counts.
func (e *Engine) Overview(ctx context.Context) (*Overview, error) {
	var o Overview
	err := e.q.QueryRow(ctx, `SELECT COUNT(DISTINCT contract_number), COUNT(*),
			COUNT(DISTINCT bidder_name), COUNT(DISTINCT item_number), COUNT(DISTINCT county),
			COUNT(DISTINCT letting_date), MIN(letting_date), MAX(letting_date)
		FROM bids`).Scan(&o.TotalContracts, &o.TotalBidRows, &o.UniqueContractors, &o.UniquePayItems,
		&o.Counties, &o.LettingDates, &o.EarliestLetting, &o.LatestLetting)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: overview")
	}
	return &o, nil
}

// CountBids returns the number of bid rows.
func (e *Engine) CountBids(ctx context.Context) (int64, error) {
	var n int64
	if err := e.q.QueryRow(ctx, `SELECT COUNT(*) FROM bids`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "pricing: count bids")
	}
	return n, nil
}

// TopContractors ranks bidders with at least minContracts distinct contracts
// by contract count.
func (e *Engine) TopContractors(ctx context.Context, minContracts, limit int) ([]ContractorRank, error) {
	if minContracts < 1 {
		minContracts = DefaultMinContracts
	}

	b := Filter{}.where(e.q.Dialect(), false)
	query := `SELECT bidder_name,
			COUNT(DISTINCT contract_number),
			COUNT(DISTINCT CASE WHEN is_winner THEN contract_number END),
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_low_item THEN 1 ELSE 0 END), 0),
			AVG(total_bid_amount)
		FROM bids
		GROUP BY bidder_name
		HAVING COUNT(DISTINCT contract_number) >= ` + b.Arg(minContracts) + `
		ORDER BY COUNT(DISTINCT contract_number) DESC, bidder_name
		LIMIT ` + b.Arg(e.Cap(limit))

	rows, err := e.q.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: top contractors")
	}
	defer rows.Close()

	out := []ContractorRank{}
	for rows.Next() {
		var r ContractorRank
		if err := rows.Scan(&r.BidderName, &r.TotalContracts, &r.ContractWins, &r.TotalItemBids,
			&r.LowItemBids, &r.AvgBidAmount); err != nil {
			return nil, eris.Wrap(err, "pricing: scan top contractor")
		}
		r.WinRate = percent(r.ContractWins, r.TotalContracts)
		r.ItemWinRate = percent(r.LowItemBids, r.TotalItemBids)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "pricing: iterate top contractors")
}

// CountyStats reports activity per county, busiest first.
func (e *Engine) CountyStats(ctx context.Context, limit int) ([]CountyStat, error) {
	b := Filter{}.where(e.q.Dialect(), false).Where("county IS NOT NULL").Where("county <> ''")
	query := `SELECT county, COUNT(DISTINCT contract_number), COUNT(DISTINCT bidder_name), COUNT(*)
		FROM bids` + b.Clause() + `
		GROUP BY county
		ORDER BY COUNT(DISTINCT contract_number) DESC, county
		LIMIT ` + b.Arg(e.Cap(limit))

	rows, err := e.q.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: county stats")
	}
	defer rows.Close()

	out := []CountyStat{}
	for rows.Next() {
		var c CountyStat
		if err := rows.Scan(&c.County, &c.Contracts, &c.UniqueBidders, &c.TotalBids); err != nil {
			return nil, eris.Wrap(err, "pricing: scan county stat")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "pricing: iterate county stats")
}

// ListContracts pages through contracts matched by f, newest letting first.
// It also returns the total number of matching contracts.
func (e *Engine) ListContracts(ctx context.Context, f Filter, offset, limit int) ([]ContractRow, int, error) {
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	if offset < 0 {
		offset = 0
	}

	cb := f.where(e.q.Dialect(), false)
	var total int
	if err := e.q.QueryRow(ctx, `SELECT COUNT(DISTINCT contract_number) FROM bids`+cb.Clause(), cb.Args()...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "pricing: count contracts")
	}

	b := f.where(e.q.Dialect(), false)
	query := `SELECT contract_number, MAX(letting_date), MAX(district), MAX(county), MAX(municipality), MAX(num_bidders)
		FROM bids` + b.Clause() + `
		GROUP BY contract_number
		ORDER BY MAX(letting_date) DESC, contract_number
		LIMIT ` + b.Arg(e.Cap(limit)) + ` OFFSET ` + b.Arg(offset)

	rows, err := e.q.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "pricing: list contracts")
	}
	defer rows.Close()

	out := []ContractRow{}
	for rows.Next() {
		var c ContractRow
		if err := rows.Scan(&c.ContractNumber, &c.LettingDate, &c.District, &c.County, &c.Municipality, &c.NumBidders); err != nil {
			return nil, 0, eris.Wrap(err, "pricing: scan contract")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "pricing: iterate contracts")
	}
	return out, total, nil
}

// ListContractors pages through bidders by contract count and returns the
// total number of distinct bidders.
func (e *Engine) ListContractors(ctx context.Context, offset, limit int) ([]ContractorRow, int, error) {
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := e.q.QueryRow(ctx, `SELECT COUNT(DISTINCT bidder_name) FROM bids`).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "pricing: count contractors")
	}

	b := Filter{}.where(e.q.Dialect(), false)
	query := `SELECT bidder_name, MAX(bidder_number), COUNT(DISTINCT contract_number),
			COUNT(DISTINCT CASE WHEN is_winner THEN contract_number END)
		FROM bids
		GROUP BY bidder_name
		ORDER BY COUNT(DISTINCT contract_number) DESC, bidder_name
		LIMIT ` + b.Arg(e.Cap(limit)) + ` OFFSET ` + b.Arg(offset)

	rows, err := e.q.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "pricing: list contractors")
	}
	defer rows.Close()

	out := []ContractorRow{}
	for rows.Next() {
		var c ContractorRow
		if err := rows.Scan(&c.BidderName, &c.BidderNumber, &c.Contracts, &c.Wins); err != nil {
			return nil, 0, eris.Wrap(err, "pricing: scan contractor")
		}
		c.WinRate = percent(c.Wins, c.Contracts)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "pricing: iterate contractors")
	}
	return out, total, nil
}
